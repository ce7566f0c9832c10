package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-engine/internal/domain/address"
	"github.com/xenking/commerce-engine/internal/domain/auth"
	"github.com/xenking/commerce-engine/internal/domain/coupon"
	"github.com/xenking/commerce-engine/internal/domain/product"
	"github.com/xenking/commerce-engine/internal/handler"
	"github.com/xenking/commerce-engine/internal/storage/postgres"
)

type catalogJSON struct {
	Products []struct {
		ID         string          `json:"id"`
		Name       string          `json:"name"`
		Category   string          `json:"category"`
		Price      decimal.Decimal `json:"price"`
		TrackStock bool            `json:"track_stock"`
		Stock      int             `json:"stock"`
		Image      string          `json:"image"`
	} `json:"products"`
	Addresses []struct {
		ID         string `json:"id"`
		UserID     string `json:"user_id"`
		Recipient  string `json:"recipient"`
		Line1      string `json:"line1"`
		Line2      string `json:"line2"`
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postal_code"`
		Country    string `json:"country"`
	} `json:"addresses"`
	Coupons []struct {
		Code          string           `json:"code"`
		Type          string           `json:"type"`
		Value         decimal.Decimal  `json:"value"`
		MinOrderValue *decimal.Decimal `json:"min_order_value"`
		MaxDiscount   *decimal.Decimal `json:"max_discount"`
		UsageLimit    *int             `json:"usage_limit"`
		Description   string           `json:"description"`
	} `json:"coupons"`
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		checkoutKey  string
		adminKey     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or COMMERCE_DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&checkoutKey, "checkout-key", "", "checkout API key to seed (or COMMERCE_SEED_CHECKOUT_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or COMMERCE_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or COMMERCE_API_KEY_PEPPER env)")
	flag.Parse()

	databaseURL = orEnv(databaseURL, "COMMERCE_DATABASE_URL")
	checkoutKey = orEnv(checkoutKey, "COMMERCE_SEED_CHECKOUT_KEY")
	adminKey = orEnv(adminKey, "COMMERCE_SEED_ADMIN_KEY")
	apiKeyPepper = orEnv(apiKeyPepper, "COMMERCE_API_KEY_PEPPER")

	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or COMMERCE_DATABASE_URL")
		os.Exit(1)
	}
	if checkoutKey == "" && adminKey == "" {
		slog.Error("at least one API key is required: set --checkout-key or --admin-key")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	keys := map[string]string{auth.ScopeCheckout: checkoutKey, auth.ScopeAdmin: adminKey}
	if err := run(ctx, databaseURL, catalogFile, keys, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func orEnv(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func run(ctx context.Context, databaseURL, catalogFile string, keys map[string]string, pepper string) error {
	slog.Info("running migrations")
	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}
	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), catalog); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedAddresses(ctx, postgres.NewAddressRepository(pool), catalog); err != nil {
		return errors.Wrap(err, "seed addresses")
	}
	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool), catalog); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	// Get inserts the default settings row when it is missing.
	if _, err := postgres.NewSettingsRepository(pool).Get(ctx); err != nil {
		return errors.Wrap(err, "seed settings")
	}
	slog.Info("settings ready")

	if err := seedAPIKeys(ctx, postgres.NewAPIKeyRepository(pool), keys, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, catalog catalogJSON) error {
	slog.Info("upserting products", slog.Int("count", len(catalog.Products)))

	for _, p := range catalog.Products {
		if err := repo.Upsert(ctx, &product.Product{
			ID:         p.ID,
			Name:       p.Name,
			Category:   p.Category,
			Price:      p.Price,
			Active:     true,
			TrackStock: p.TrackStock,
			Stock:      p.Stock,
			Image:      p.Image,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedAddresses(ctx context.Context, repo *postgres.AddressRepository, catalog catalogJSON) error {
	for _, a := range catalog.Addresses {
		if err := repo.Upsert(ctx, &address.Address{
			ID:         a.ID,
			UserID:     a.UserID,
			Recipient:  a.Recipient,
			Line1:      a.Line1,
			Line2:      a.Line2,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		}); err != nil {
			return errors.Wrapf(err, "upsert address %s", a.ID)
		}

		slog.Info("upserted address", slog.String("id", a.ID), slog.String("user_id", a.UserID))
	}

	return nil
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository, catalog catalogJSON) error {
	now := time.Now()
	for _, c := range catalog.Coupons {
		if err := repo.Upsert(ctx, &coupon.Coupon{
			Code:          coupon.NormalizeCode(c.Code),
			DiscountType:  coupon.DiscountType(c.Type),
			Value:         c.Value,
			MinOrderValue: c.MinOrderValue,
			MaxDiscount:   c.MaxDiscount,
			UsageLimit:    c.UsageLimit,
			Active:        true,
			Description:   c.Description,
			CreatedAt:     now,
			UpdatedAt:     now,
		}); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("description", c.Description))
	}

	return nil
}

func seedAPIKeys(ctx context.Context, repo *postgres.APIKeyRepository, keys map[string]string, pepper string) error {
	for scope, key := range keys {
		if key == "" {
			continue
		}
		info := &auth.APIKeyInfo{
			ID:      "default-" + scope,
			KeyHash: handler.HashAPIKey([]byte(pepper), key),
			Name:    "Default " + scope + " key",
			Scopes:  []string{scope},
		}
		if err := repo.Upsert(ctx, info); err != nil {
			return errors.Wrapf(err, "upsert %s key", scope)
		}

		slog.Info("upserted API key", slog.String("id", info.ID), slog.String("scope", scope))
	}

	return nil
}
