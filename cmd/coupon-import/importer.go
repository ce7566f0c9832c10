package main

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/commerce-engine/internal/domain/coupon"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
)

// Upserter stores imported coupons.
type Upserter interface {
	Upsert(ctx context.Context, c *coupon.Coupon) error
}

// Stats summarizes an import run.
type Stats struct {
	Rows       int64
	Invalid    int64
	Duplicates int64
	Written    int64
}

// sightings tracks which codes were already read, in a bloom filter shared by
// all files. Only codes the filter flags are kept exactly, as suspects to be
// resolved once every file is read.
type sightings struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func newSightings(capacity uint, fpr float64) *sightings {
	return &sightings{filter: bloom.NewWithEstimates(capacity, fpr)}
}

// first reports whether code is definitely seen for the first time. A false
// result means it was probably seen before.
func (s *sightings) first(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.filter.TestAndAddString(code)
}

// resolve splits suspects into real duplicates and filter false positives.
// A suspect is a duplicate if its code was accepted, or if an earlier suspect
// with the same code was already admitted.
func resolve(accepted [][]coupon.Input, suspects []coupon.Input) (admitted []coupon.Input, duplicates int) {
	if len(suspects) == 0 {
		return nil, 0
	}
	taken := make(map[string]bool, len(suspects))
	for _, in := range suspects {
		taken[in.Code] = false
	}
	for _, batch := range accepted {
		for _, in := range batch {
			if _, ok := taken[in.Code]; ok {
				taken[in.Code] = true
			}
		}
	}
	for _, in := range suspects {
		if taken[in.Code] {
			duplicates++
			continue
		}
		taken[in.Code] = true
		admitted = append(admitted, in)
	}
	return admitted, duplicates
}

// parseRecord converts one CSV record (code,type,value[,min,max,limit]) into
// a validated coupon input. Empty optional columns are left unset.
func parseRecord(rec []string) (coupon.Input, error) {
	if len(rec) < 3 || len(rec) > 6 {
		return coupon.Input{}, errors.Errorf("expected 3 to 6 columns, got %d", len(rec))
	}
	field := func(i int) string {
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	in := coupon.Input{
		Code:         coupon.NormalizeCode(field(0)),
		DiscountType: coupon.DiscountType(strings.ToLower(field(1))),
		Active:       true,
	}
	value, err := decimal.NewFromString(field(2))
	if err != nil {
		return coupon.Input{}, errors.Wrapf(err, "parse value %q", field(2))
	}
	in.Value = value

	if in.MinOrderValue, err = optDecimal(field(3)); err != nil {
		return coupon.Input{}, errors.Wrap(err, "parse min order value")
	}
	if in.MaxDiscount, err = optDecimal(field(4)); err != nil {
		return coupon.Input{}, errors.Wrap(err, "parse max discount")
	}
	if s := field(5); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return coupon.Input{}, errors.Wrapf(err, "parse usage limit %q", s)
		}
		in.UsageLimit = &n
	}

	if err := in.Validate(); err != nil {
		return coupon.Input{}, err
	}
	return in, nil
}

func optDecimal(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", s)
	}
	return &d, nil
}

// isHeader reports whether rec is the optional header row.
func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "code")
}

// readCSV streams the records of a CSV file, transparently gunzipping
// files with a .gz suffix.
func readCSV(ctx context.Context, path string, fn func(line int, rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return scanCSV(ctx, r, fn)
}

func scanCSV(ctx context.Context, r io.Reader, fn func(line int, rec []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read line %d", line)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}

// Importer loads coupon files and upserts them.
type Importer struct {
	repo     Upserter
	workers  int
	capacity uint
	// fpr is the bloom filter false positive rate; zero means bloomFPR.
	fpr float64
	now func() time.Time
}

// Import parses files concurrently and upserts each distinct code once. A code
// present in several files is taken from whichever file reads it first.
// Invalid rows are logged and skipped.
func (imp *Importer) Import(ctx context.Context, files []string) (Stats, error) {
	fpr := imp.fpr
	if fpr <= 0 {
		fpr = bloomFPR
	}
	var (
		stats    Stats
		seen     = newSightings(imp.capacity, fpr)
		parsed   = make([][]coupon.Input, len(files))
		suspects = make([][]coupon.Input, len(files))
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			var out, maybe []coupon.Input
			err := readCSV(gctx, path, func(line int, rec []string) error {
				if n := atomic.AddInt64(&stats.Rows, 1); n%progressEvery == 0 {
					slog.Info("parse progress", slog.Int64("rows", n))
				}
				in, err := parseRecord(rec)
				if err != nil {
					atomic.AddInt64(&stats.Invalid, 1)
					slog.Warn("skipping invalid row",
						slog.String("file", path),
						slog.Int("line", line),
						slog.String("error", err.Error()),
					)
					return nil
				}
				if seen.first(in.Code) {
					out = append(out, in)
				} else {
					maybe = append(maybe, in)
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "parse %s", path)
			}
			slog.Info("parsed file",
				slog.String("file", path),
				slog.Int("coupons", len(out)),
				slog.Int("suspects", len(maybe)),
			)
			parsed[i] = out
			suspects[i] = maybe
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	admitted, duplicates := resolve(parsed, slices.Concat(suspects...))
	stats.Duplicates = int64(duplicates)
	parsed = append(parsed, admitted)

	w, wctx := errgroup.WithContext(ctx)
	w.SetLimit(max(imp.workers, 1))
	now := imp.now()
	for _, batch := range parsed {
		for _, in := range batch {
			w.Go(func() error {
				c := &coupon.Coupon{CreatedAt: now, UpdatedAt: now}
				in.Apply(c)
				if err := imp.repo.Upsert(wctx, c); err != nil {
					return errors.Wrapf(err, "upsert coupon %s", c.Code)
				}
				atomic.AddInt64(&stats.Written, 1)
				return nil
			})
		}
	}
	if err := w.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}
