package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/peoplehub/integration-gateway/internal/auth"
	"github.com/peoplehub/integration-gateway/internal/config"
	"github.com/peoplehub/integration-gateway/internal/db"
	"github.com/peoplehub/integration-gateway/internal/model"
	"github.com/peoplehub/integration-gateway/internal/repository"
	"github.com/peoplehub/integration-gateway/internal/signature"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo subscriptions and API credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo subscriptions and credentials...")

		ctx := cmd.Context()
		if err := seedSubscriptions(ctx, sqlDB); err != nil {
			return err
		}
		if err := seedCredentials(ctx, sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedSubscriptions inserts deterministic demo endpoints (idempotent upsert).
func seedSubscriptions(ctx context.Context, dbx *sqlx.DB) error {
	repo := repository.NewSubscriptionsRepository(dbx)

	subs := []model.Subscription{
		{
			ID:         "sub_acme_orders",
			TenantID:   "acme",
			TargetURL:  "https://hooks.acme.example/orders",
			Secret:     mustSecret(),
			EventTypes: model.StringSet{"order.created", "order.updated"},
			Active:     true,
			CustomHeaders: model.StringMap{
				"X-Team": "orders",
			},
		},
		{
			ID:         "sub_acme_invoices",
			TenantID:   "acme",
			TargetURL:  "https://hooks.acme.example/invoices",
			Secret:     mustSecret(),
			EventTypes: model.StringSet{"invoice.paid"},
			Active:     true,
			TimeoutMs:  10_000,
		},
		{
			ID:          "sub_globex_all",
			TenantID:    "globex",
			TargetURL:   "https://webhooks.globex.example/ingest",
			Secret:      mustSecret(),
			EventTypes:  model.StringSet{"order.created", "invoice.paid", "user.deleted"},
			Active:      true,
			MaxAttempts: 8,
		},
		{
			ID:         "sub_globex_paused",
			TenantID:   "globex",
			TargetURL:  "https://webhooks.globex.example/paused",
			Secret:     mustSecret(),
			EventTypes: model.StringSet{"user.deleted"},
			Active:     false,
		},
	}

	for _, s := range subs {
		if err := repo.Insert(ctx, nil, s); err != nil {
			return fmt.Errorf("insert subscription %q: %w", s.ID, err)
		}
	}
	return nil
}

// seedCredentials mints API keys for the demo tenants. The raw keys are printed
// exactly once here; only the hashes land in the database.
func seedCredentials(ctx context.Context, dbx *sqlx.DB) error {
	repo := repository.NewCredentialsRepository(dbx)

	creds := []struct {
		keyID    string
		tenantID string
		scopes   model.StringSet
		limit    int
		ips      model.StringSet
	}{
		{keyID: "acme01", tenantID: "acme", scopes: model.StringSet{"events:emit", "deliveries:read"}, limit: 120},
		{keyID: "acme02", tenantID: "acme", scopes: model.StringSet{"deliveries:read"}, limit: 30},
		{keyID: "globex01", tenantID: "globex", scopes: model.StringSet{"events:emit", "deliveries:read"}, limit: 60,
			ips: model.StringSet{"10.0.0.1", "10.0.0.2"}},
	}

	for _, c := range creds {
		rawKey, hashed, err := auth.MintKey(c.keyID)
		if err != nil {
			return fmt.Errorf("mint key %q: %w", c.keyID, err)
		}
		cred := model.Credential{
			KeyID:              c.keyID,
			TenantID:           c.tenantID,
			HashedSecret:       hashed,
			Scopes:             c.scopes,
			RateLimitPerWindow: c.limit,
			AllowedIPs:         c.ips,
		}
		if err := repo.Insert(ctx, nil, cred); err != nil {
			return fmt.Errorf("insert credential %q: %w", c.keyID, err)
		}
		fmt.Printf("API key for tenant %s (%s): %s\n", c.tenantID, c.keyID, rawKey)
	}
	return nil
}

func mustSecret() string {
	s, err := signature.GenerateSecret(32)
	if err != nil {
		panic(err)
	}
	return s
}
