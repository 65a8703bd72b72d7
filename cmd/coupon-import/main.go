// Command coupon-import loads coupons from gzip-compressed CODE,PERCENT files
// into the remote store.
//
// Codes repeated across files are detected with one bloom filter per file and
// resolved exactly: the occurrence in the earliest file wins. Repeats within
// a file and codes already in the store are left to the store's uniqueness
// constraint.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/order-desk/internal/mongostore"
	"github.com/xenking/order-desk/internal/repository"
)

func main() {
	_ = godotenv.Load()

	var (
		dataDir       string
		driver        string
		databaseURL   string
		mongoURI      string
		mongoDatabase string
		opts          Options
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz coupon files, used when no files are given")
	flag.StringVar(&driver, "driver", "postgres", "remote store driver: postgres or mongo")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&mongoURI, "mongo-uri", "", "MongoDB connection URI (or MONGO_URI env)")
	flag.StringVar(&mongoDatabase, "mongo-database", "order_desk", "MongoDB database name")
	flag.UintVar(&opts.Capacity, "bloom-capacity", 10_000_000, "expected codes per file")
	flag.Float64Var(&opts.FalsePositiveRate, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.IntVar(&opts.Workers, "workers", 8, "concurrent store writers")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
		if err != nil {
			slog.Error("list coupon files", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sort.Strings(matches)
		files = matches
	}
	if len(files) == 0 {
		slog.Error("no coupon files: pass them as arguments or put *.gz files in --data-dir")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	store, closeStore, err := openStore(ctx, driver, databaseURL, mongoURI, mongoDatabase)
	if err != nil {
		slog.Error("open remote store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	stats, err := NewImporter(store, opts).Import(ctx, files)
	if err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully",
		slog.Int64("inserted", stats.Inserted),
		slog.Int64("existing", stats.Existing),
		slog.Int64("cross_file_duplicates", stats.CrossFileDuplicates),
		slog.Int64("conflicts", stats.Conflicts),
		slog.Int64("invalid_lines", stats.Invalid),
	)
}

func openStore(ctx context.Context, driver, databaseURL, mongoURI, mongoDatabase string) (Store, func(), error) {
	switch driver {
	case "postgres":
		if databaseURL == "" {
			databaseURL = os.Getenv("DATABASE_URL")
		}
		if databaseURL == "" {
			return nil, nil, errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		pool, err := repository.NewPool(ctx, databaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to database")
		}
		if err := repository.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		return repository.NewCouponRepository(pool), pool.Close, nil
	case "mongo":
		if mongoURI == "" {
			mongoURI = os.Getenv("MONGO_URI")
		}
		if mongoURI == "" {
			return nil, nil, errors.New("mongo URI is required: set --mongo-uri or MONGO_URI")
		}
		client, err := mongostore.Connect(ctx, mongoURI)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to mongo")
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		db := client.Database(mongoDatabase)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			closeFn()
			return nil, nil, errors.Wrap(err, "ensure indexes")
		}
		return mongostore.NewCouponRepository(db), closeFn, nil
	default:
		return nil, nil, errors.Errorf("unknown driver %q", driver)
	}
}
