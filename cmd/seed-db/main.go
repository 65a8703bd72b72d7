// Command seed-db loads products, sample coupons and agent API keys into the
// PostgreSQL remote store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-desk/internal/domain/auth"
	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/internal/handler"
	"github.com/xenking/order-desk/internal/repository"
)

type productJSON struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// seedAgent is an API key to create when its key is configured.
type seedAgent struct {
	agent auth.Agent
	key   string
}

var sampleCoupons = []struct {
	code string
	pct  string
}{
	{code: "WELCOME10", pct: "10"},
	{code: "HAPPYHOURS", pct: "18"},
	{code: "HALFOFF", pct: "50"},
}

func main() {
	_ = godotenv.Load()

	var (
		databaseURL  string
		productsFile string
		agentKey     string
		adminKey     string
		analystKey   string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&agentKey, "agent-key", os.Getenv("KART_SEED_AGENT_KEY"), "API key for the sample agent")
	flag.StringVar(&adminKey, "admin-key", os.Getenv("KART_SEED_ADMIN_KEY"), "API key for the sample admin")
	flag.StringVar(&analystKey, "analyst-key", os.Getenv("KART_SEED_ANALYST_KEY"), "API key for the sample analyst")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", os.Getenv("KART_API_KEY_PEPPER"), "HMAC pepper for API key hashing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if agentKey == "" && adminKey == "" && analystKey == "" {
		slog.Error("at least one API key is required: set --agent-key, --admin-key or --analyst-key")
		os.Exit(1)
	}

	agents := []seedAgent{
		{agent: auth.Agent{ID: "agent-1", Name: "Sample agent", Role: auth.RoleAgent}, key: agentKey},
		{agent: auth.Agent{ID: "admin-1", Name: "Sample admin", Role: auth.RoleAdmin}, key: adminKey},
		{agent: auth.Agent{ID: "analyst-1", Name: "Sample analyst", Role: auth.RoleAnalyst}, key: analystKey},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, agents, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, agents []seedAgent, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKeys(ctx, pool, agents, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	repo := repository.NewProductRepository(pool)
	for _, p := range products {
		if err := repo.Upsert(ctx, product.Product{ID: p.ID, Name: p.Name, Price: p.Price}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding sample coupons")

	repo := repository.NewCouponRepository(pool)
	for _, c := range sampleCoupons {
		inserted, err := repo.Insert(ctx, c.code, decimal.RequireFromString(c.pct))
		if err != nil {
			return errors.Wrapf(err, "insert coupon %s", c.code)
		}

		slog.Info("seeded coupon",
			slog.String("code", c.code),
			slog.String("percent", c.pct),
			slog.Bool("inserted", inserted),
		)
	}

	return nil
}

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, agents []seedAgent, pepper string) error {
	slog.Info("seeding API keys")

	repo := repository.NewAPIKeyRepository(pool)
	for _, a := range agents {
		if a.key == "" {
			continue
		}

		cred := auth.Credential{
			ID:      a.agent.ID,
			KeyHash: handler.HashKey([]byte(pepper), a.key),
			Agent:   a.agent,
		}
		if err := repo.Upsert(ctx, cred); err != nil {
			return errors.Wrapf(err, "upsert API key %s", a.agent.ID)
		}

		slog.Info("upserted API key", slog.String("agent", a.agent.ID), slog.String("role", string(a.agent.Role)))
	}

	return nil
}
