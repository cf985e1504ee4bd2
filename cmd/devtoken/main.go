package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/medibridge/medibridge-api/internal/config"
	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/domain/policy"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
	"github.com/medibridge/medibridge-api/internal/pkg/jwt"
)

// devtoken mints an access token for local testing. Login lives in another
// service; this signs with the same JWT_SECRET the API validates against.
func main() {
	userFlag := flag.String("user", "", "user id (random when empty)")
	roleFlag := flag.String("role", string(policy.RolePatient), "role claim")
	inspect := flag.Bool("inspect", false, "print the user's wallet balances from the database")
	flag.Parse()

	cfg := config.Load()

	role := policy.Role(*roleFlag)
	if !role.Valid() {
		log.Fatalf("unknown role %q", *roleFlag)
	}

	userID := uuid.New()
	if *userFlag != "" {
		id, err := uuid.Parse(*userFlag)
		if err != nil {
			log.Fatalf("invalid user id: %v", err)
		}
		userID = id
	}

	token, err := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL).GenerateAccessToken(userID, string(role))
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Println("user: ", userID)
	fmt.Println("role: ", role)
	fmt.Println("token:", token)

	if !*inspect {
		return
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.ClosePostgres(db)

	l := ledger.New(ledger.NewPostgresStore(db))
	fmt.Println("--- Balances ---")
	for _, w := range []ledger.Wallet{ledger.WalletHealthPoints, ledger.WalletCommission} {
		balance, err := l.Balance(context.Background(), ledger.Key(userID, w))
		if err != nil {
			log.Printf("Balance error for %s: %v", w, err)
			continue
		}
		fmt.Printf("%-14s %s\n", w, balance.StringFixed(2))
	}
	fmt.Println("----------------")
}
