package domain

import (
	"time"

	"github.com/google/uuid"
)

// PurchasePeriod is the rental period for a proxy order.
type PurchasePeriod struct {
	Unit  string `json:"unit"` // e.g. "days", "months"
	Value int    `json:"value"`
}

// PurchaseOptions carries the optional order parameters forwarded to the
// upstream provider. Unset fields are omitted from the provider payload
// entirely; the provider rejects explicit nulls and empty objects.
type PurchaseOptions struct {
	Quantity   *int            `json:"quantity,omitempty"`
	Period     *PurchasePeriod `json:"period,omitempty"`
	AutoExtend *bool           `json:"autoExtend,omitempty"`
	Traffic    *float64        `json:"traffic,omitempty"`
	Country    *string         `json:"country,omitempty"`
	PackageID  *string         `json:"packageId,omitempty"`
	ISPID      *string         `json:"ispId,omitempty"`
}

// PendingPurchase stages the parameters needed to execute a provider order
// once the matching payment is confirmed. Keyed by the ledger transaction id
// and deleted on completion or permanent failure.
type PendingPurchase struct {
	TransactionID      uuid.UUID       `json:"transaction_id"`
	UserID             uuid.UUID       `json:"user_id"`
	ServiceID          string          `json:"service_id"`
	PlanID             *string         `json:"plan_id,omitempty"`
	PricePaidUSD       float64         `json:"price_paid_usd"`
	ExpectedPriceLocal *int64          `json:"expected_price_local,omitempty"` // in naira
	Options            PurchaseOptions `json:"options"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Purchase is a completed proxy order linked to a user.
type Purchase struct {
	ID            uuid.UUID              `json:"id"`
	UserID        uuid.UUID              `json:"user_id"`
	TransactionID uuid.UUID              `json:"transaction_id"`
	ServiceID     string                 `json:"service_id"`
	PlanID        *string                `json:"plan_id,omitempty"`
	PricePaidUSD  float64                `json:"price_paid_usd"`
	ProviderOrder string                 `json:"provider_order_id"`
	Status        string                 `json:"status"`
	Details       map[string]interface{} `json:"details,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// PurchaseRequest is the DTO for initiating a proxy purchase.
type PurchaseRequest struct {
	PlanID        *string         `json:"plan_id,omitempty"`
	Quantity      *int            `json:"quantity,omitempty"`
	Period        *PurchasePeriod `json:"period,omitempty"`
	AutoExtend    *bool           `json:"auto_extend,omitempty"`
	Traffic       *float64        `json:"traffic,omitempty"`
	Country       *string         `json:"country,omitempty"`
	PackageID     *string         `json:"package_id,omitempty"`
	ISPID         *string         `json:"isp_id,omitempty"`
	ExpectedPrice *int64          `json:"expected_price,omitempty"` // in naira
	WalletFunded  bool            `json:"wallet_funded"`
}

// ToOptions converts the request into the options staged for fulfillment.
func (r PurchaseRequest) ToOptions() PurchaseOptions {
	return PurchaseOptions{
		Quantity:   r.Quantity,
		Period:     r.Period,
		AutoExtend: r.AutoExtend,
		Traffic:    r.Traffic,
		Country:    r.Country,
		PackageID:  r.PackageID,
		ISPID:      r.ISPID,
	}
}
