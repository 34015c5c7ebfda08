package config

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.PaymentEventExchange != "payment_events" {
		t.Errorf("expected default exchange, got %q", cfg.PaymentEventExchange)
	}
	if cfg.ExchangeRateFallback != 1500 {
		t.Errorf("expected fallback rate 1500, got %f", cfg.ExchangeRateFallback)
	}
	if cfg.ExchangeRateTTLMinutes != 60 {
		t.Errorf("expected rate TTL 60, got %d", cfg.ExchangeRateTTLMinutes)
	}
	if cfg.PriceToleranceMinNGN != 100 {
		t.Errorf("expected tolerance floor 100, got %d", cfg.PriceToleranceMinNGN)
	}
	if cfg.RedisRateLimitPrefix != "proxynest:rate_limit" {
		t.Errorf("expected default redis prefix, got %q", cfg.RedisRateLimitPrefix)
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("WEBHOOK_SECRET", "  whsec_abc  ")
	t.Setenv("EXCHANGE_RATE_FALLBACK", "-5")
	t.Setenv("PRICE_TOLERANCE_MIN_NGN", "-10")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ServerPort != "9191" {
		t.Errorf("expected port override 9191, got %q", cfg.ServerPort)
	}
	if cfg.WebhookSecret != "whsec_abc" {
		t.Errorf("expected trimmed webhook secret, got %q", cfg.WebhookSecret)
	}
	// Nonsensical values are coerced to safe ones rather than rejected.
	if cfg.ExchangeRateFallback != 1500 {
		t.Errorf("expected coerced fallback 1500, got %f", cfg.ExchangeRateFallback)
	}
	if cfg.PriceToleranceMinNGN != 0 {
		t.Errorf("expected coerced tolerance 0, got %d", cfg.PriceToleranceMinNGN)
	}
}
