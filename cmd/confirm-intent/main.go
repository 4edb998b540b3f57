package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/config"
	"github.com/jafarshop/orderengine/internal/events"
	"github.com/jafarshop/orderengine/internal/gateway"
	"github.com/jafarshop/orderengine/internal/repository/postgres"
	"github.com/jafarshop/orderengine/internal/service"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

// confirm-intent applies a payment whose webhook never arrived. It asks the
// gateway for the intent's state and runs the same idempotent confirmation
// the webhook uses, so running it twice is harmless.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/confirm-intent/main.go <order-id | payment-intent-id>")
		fmt.Println("Example: go run cmd/confirm-intent/main.go pi_3OqX2LJ8h1")
		os.Exit(1)
	}
	target := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, logger)
	gw := gateway.NewClient(cfg.Gateway, logger)
	payments := service.NewPaymentService(repos, gw, gateway.NewWebhookVerifier(cfg.Gateway.WebhookSecret, cfg.Gateway.WebhookTolerance), nil, events.NewLogPublisher(logger), logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	order, err := repos.Order.GetByGatewayRef(ctx, target)
	if apperrors.HasCode(err, apperrors.CodeNotFound) {
		if id, parseErr := uuid.Parse(target); parseErr == nil {
			order, err = repos.Order.GetByID(ctx, id)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find order for %s: %v\n", target, err)
		os.Exit(1)
	}

	fmt.Printf("Order:   %s\n", order.ID.String())
	fmt.Printf("Status:  %s\n", order.Status)
	fmt.Printf("Payment: %s (%s)\n", order.PaymentStatus, order.PaymentMethod)

	result, err := payments.ConfirmIntent(ctx, order, service.SourceOperator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nConfirmation failed: %v\n", err)
		os.Exit(1)
	}

	if result.AlreadyPaid {
		fmt.Printf("\nAlready paid, nothing to do.\n")
		return
	}
	fmt.Printf("\nPayment confirmed, order is now %s.\n", result.Order.Status)
}
