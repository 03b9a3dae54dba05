package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/oksasatya/driver-desk/config"
	"github.com/oksasatya/driver-desk/internal/domain/entity"
	"github.com/oksasatya/driver-desk/internal/domain/repository"
	pginfra "github.com/oksasatya/driver-desk/internal/infrastructure/postgres"
	"github.com/oksasatya/driver-desk/pkg/helpers"
)

// seed creates (or promotes) a verified Admin account.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	email := flag.String("email", "admin@driverdesk.local", "admin email")
	name := flag.String("name", "Administrator", "admin display name")
	password := flag.String("password", "password123", "admin password")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), 2, 1, time.Minute)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	accounts := pginfra.NewAccountRepository(pool)

	addr := entity.NormalizeEmail(*email)
	hash, err := helpers.NewBcryptHasher(cfg.BcryptCost).Hash(*password)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	now := time.Now()
	acc, err := accounts.GetByEmail(ctx, addr)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		acc = &entity.Account{
			ID:            uuid.NewString(),
			Name:          strings.TrimSpace(*name),
			Email:         addr,
			ImageURL:      cfg.DefaultImageURL(),
			Role:          entity.RoleAdmin,
			PasswordHash:  hash,
			EmailVerified: true,
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := accounts.Create(ctx, acc); err != nil {
			log.Fatalf("failed to seed admin: %v", err)
		}
		log.Printf("seeded admin: id=%s email=%s", acc.ID, acc.Email)
	case err != nil:
		log.Fatalf("failed to look up %s: %v", addr, err)
	default:
		acc.Role = entity.RoleAdmin
		acc.EmailVerified = true
		acc.ExpiresAt = nil
		acc.UpdatedAt = now
		if err := accounts.Update(ctx, acc); err != nil {
			log.Fatalf("failed to promote %s: %v", addr, err)
		}
		log.Printf("promoted existing account to admin: id=%s email=%s", acc.ID, acc.Email)
	}
}
