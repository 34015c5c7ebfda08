/**
 * @description
 * This is the main entry point for the payment-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * external API clients, message brokers, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/proxyclient, pkg/paymentpoint, pkg/fxrates: Clients for external APIs.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proxynest/payment-service/internal/api"
	"github.com/proxynest/payment-service/internal/app"
	"github.com/proxynest/payment-service/internal/config"
	"github.com/proxynest/payment-service/internal/store"
	"github.com/proxynest/payment-service/pkg/fxrates"
	"github.com/proxynest/payment-service/pkg/paymentpoint"
	"github.com/proxynest/payment-service/pkg/proxyclient"
	pmrabbit "github.com/proxynest/payment-service/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"webhook secret must be configured\" env=WEBHOOK_SECRET")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting payment-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish payment events.
	// This service only needs to publish, so we use a producer.
	var eventProducer pmrabbit.Publisher
	producer, err := pmrabbit.NewEventProducer(cfg.RabbitMQURL, cfg.PaymentEventExchange)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &pmrabbit.EventProducerFallback{}
	} else {
		defer producer.Close()
		eventProducer = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize clients for the external APIs.
	providerClient := proxyclient.NewClient(cfg.ProxyAPIBaseURL, cfg.ProxyAPIKey, cfg.ProxyAPISecret)
	rateClient := fxrates.NewClient(cfg.ExchangeRateURL)

	// Missing PaymentPoint config should not prevent the service from booting;
	// virtual account provisioning will degrade.
	var accountProvisioner app.AccountProvisioner
	if strings.TrimSpace(cfg.PaymentPointBaseURL) == "" || strings.TrimSpace(cfg.PaymentPointAPISecret) == "" {
		log.Printf("level=warn component=bootstrap msg=\"paymentpoint client not configured; account provisioning disabled\" base_url_set=%t api_secret_set=%t",
			strings.TrimSpace(cfg.PaymentPointBaseURL) != "",
			strings.TrimSpace(cfg.PaymentPointAPISecret) != "",
		)
	} else {
		accountProvisioner = paymentpoint.NewClient(cfg.PaymentPointBaseURL, cfg.PaymentPointAPIKey, cfg.PaymentPointAPISecret, cfg.PaymentPointBusinessID)
	}

	var redisClient *redis.Client
	rateLimitingEnabled := cfg.DepositRateLimitPerMinute > 0 || cfg.PurchaseRateLimitPerMinute > 0
	if rateLimitingEnabled {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the exchange-rate service and the core application service.
	rateService := app.NewRateService(
		repository,
		rateClient,
		time.Duration(cfg.ExchangeRateTTLMinutes)*time.Minute,
		cfg.ExchangeRateFallback,
	)
	paymentService := app.NewService(
		repository,
		providerClient,
		accountProvisioner,
		eventProducer,
		rateService,
		cfg.PriceToleranceMinNGN,
	)

	var limiter *app.RedisInitiationRateLimiter
	if redisClient != nil {
		limiter = app.NewRedisInitiationRateLimiter(redisClient, cfg.RedisRateLimitPrefix, map[string]app.ScopeLimit{
			"deposit":  {Limit: cfg.DepositRateLimitPerMinute, Window: time.Minute},
			"purchase": {Limit: cfg.PurchaseRateLimitPerMinute, Window: time.Minute},
		})
	}

	// Initialize the API handlers and router.
	paymentHandlers := api.NewPaymentHandlers(paymentService, limiter, cfg.WebhookSecret)
	router := api.PaymentRoutes(paymentHandlers, cfg.JWTSecret)

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
