// Package main is a small operator tool for seeding and deactivating
// accounts. Account lifecycle is otherwise managed outside the auth core.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/time-ledger/internal/account"
	"github.com/yourusername/time-ledger/internal/config"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	switch os.Args[1] {
	case "create":
		runCreate(cfg, os.Args[2:])
	case "deactivate":
		runDeactivate(cfg, os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: accountctl <create|deactivate> [flags]")
	os.Exit(2)
}

func runCreate(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	tenant := fs.String("tenant", cfg.DefaultTenant, "tenant the account belongs to")
	username := fs.String("username", "", "login username")
	email := fs.String("email", "", "login email")
	password := fs.String("password", "", "plaintext password to hash")
	admin := fs.Bool("admin", false, "grant admin privileges")
	fs.Parse(args)

	if *username == "" || *email == "" || *password == "" {
		log.Fatal("create requires -username, -email and -password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	store, err := account.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open account store: %v", err)
	}
	defer store.Close()

	acc := &account.Account{
		TenantID:     *tenant,
		Username:     *username,
		Email:        *email,
		PasswordHash: string(hash),
		IsAdmin:      *admin,
		Active:       true,
	}
	if err := store.CreateAccount(context.Background(), acc); err != nil {
		log.Fatalf("failed to create account: %v", err)
	}

	fmt.Printf("created account %s (%s/%s)\n", acc.ID, acc.TenantID, acc.Username)
}

func runDeactivate(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("deactivate", flag.ExitOnError)
	tenant := fs.String("tenant", cfg.DefaultTenant, "tenant the account belongs to")
	identifier := fs.String("identifier", "", "username or email of the account")
	fs.Parse(args)

	if *identifier == "" {
		log.Fatal("deactivate requires -identifier")
	}

	store, err := account.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open account store: %v", err)
	}
	defer store.Close()

	acc, err := store.FindAccount(context.Background(), *tenant, *identifier)
	if err != nil {
		log.Fatalf("failed to find account: %v", err)
	}
	if err := store.SetActive(context.Background(), acc.ID, false); err != nil {
		log.Fatalf("failed to deactivate account: %v", err)
	}

	fmt.Printf("deactivated account %s (%s/%s)\n", acc.ID, acc.TenantID, acc.Username)
}
