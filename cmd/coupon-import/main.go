// Command coupon-import bulk-loads coupons from CSV files, optionally
// gzip-compressed, into the coupons table.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/commerce-engine/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		workers     int
		capacity    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv and *.csv.gz coupon files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or COMMERCE_DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 8, "concurrent database writers")
	flag.UintVar(&capacity, "expected-codes", 1_000_000, "expected number of distinct codes, sizes the bloom filter")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("COMMERCE_DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or COMMERCE_DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, workers, capacity); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, workers int, capacity uint) error {
	files, err := couponFiles(dataDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		slog.Info("no coupon files found", slog.String("dir", dataDir))
		return nil
	}
	slog.Info("importing coupon files", slog.Int("files", len(files)))

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	imp := &Importer{
		repo:     postgres.NewCouponRepository(pool),
		workers:  workers,
		capacity: capacity,
		now:      time.Now,
	}
	stats, err := imp.Import(ctx, files)
	slog.Info("import stats",
		slog.Int64("rows", stats.Rows),
		slog.Int64("invalid", stats.Invalid),
		slog.Int64("duplicates", stats.Duplicates),
		slog.Int64("written", stats.Written),
	)
	return err
}

func couponFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.csv", "*.csv.gz"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, errors.Wrapf(err, "glob %s", pattern)
		}
		files = append(files, m...)
	}
	return files, nil
}
