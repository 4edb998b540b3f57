package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/orderengine/internal/config"
	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/repository/postgres"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: go run cmd/create-staff/main.go <name> <role> <api-key> [shop-id]")
		fmt.Println("Example: go run cmd/create-staff/main.go \"Ops Console\" admin \"ops-api-key-12345\"")
		os.Exit(1)
	}

	name := os.Args[1]
	role := domain.Role(os.Args[2])
	apiKey := os.Args[3]

	if role != domain.RoleAdmin && role != domain.RoleSeller {
		fmt.Fprintf(os.Stderr, "Role must be admin or seller, got %q\n", role)
		os.Exit(1)
	}

	var shopID *uuid.UUID
	if len(os.Args) > 4 {
		id, err := uuid.Parse(os.Args[4])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid shop ID: %v\n", err)
			os.Exit(1)
		}
		shopID = &id
	}
	if role == domain.RoleSeller && shopID == nil {
		fmt.Fprintln(os.Stderr, "Seller accounts need a shop ID")
		os.Exit(1)
	}

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

	apiKeyHash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash API key: %v\n", err)
		os.Exit(1)
	}

	repos := postgres.NewRepositories(db, logger)

	staff := &domain.StaffAccount{
		Name:       name,
		APIKeyHash: string(apiKeyHash),
		Role:       role,
		ShopID:     shopID,
		IsActive:   true,
	}
	if err := repos.Staff.Create(context.Background(), staff); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create staff account: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Staff account created\n\n")
	fmt.Printf("ID:      %s\n", staff.ID.String())
	fmt.Printf("Name:    %s\n", staff.Name)
	fmt.Printf("Role:    %s\n", staff.Role)
	if shopID != nil {
		fmt.Printf("Shop ID: %s\n", shopID.String())
	}
	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("\nThe key is stored hashed and cannot be shown again.\n")
	fmt.Printf("Send it in the X-API-Key header.\n")
}
