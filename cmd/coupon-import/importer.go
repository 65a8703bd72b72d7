package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-desk/internal/domain/coupon"
)

const progressEvery = 1_000_000

// Store inserts a coupon unless its code already exists.
type Store interface {
	Insert(ctx context.Context, code string, pct decimal.Decimal) (bool, error)
}

// Options tunes the importer.
type Options struct {
	// Capacity is the expected number of codes per file.
	Capacity uint
	// FalsePositiveRate of each bloom filter.
	FalsePositiveRate float64
	// Workers is the number of concurrent store writers.
	Workers int
}

// Stats summarises an import.
type Stats struct {
	Inserted            int64
	Existing            int64
	CrossFileDuplicates int64
	Conflicts           int64
	Invalid             int64
}

// Importer loads coupon files into a Store.
type Importer struct {
	store Store
	opts  Options

	inserted  atomic.Int64
	existing  atomic.Int64
	duplicate atomic.Int64
	conflicts atomic.Int64
	invalid   atomic.Int64
}

// NewImporter creates an Importer. Zero options select defaults.
func NewImporter(store Store, opts Options) *Importer {
	if opts.Capacity == 0 {
		opts.Capacity = 1_000_000
	}
	if opts.FalsePositiveRate <= 0 || opts.FalsePositiveRate >= 1 {
		opts.FalsePositiveRate = 0.001
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Importer{store: store, opts: opts}
}

type entry struct {
	pct decimal.Decimal
	// file is the index of the earliest file holding the code.
	file int
}

// Import streams files twice. The first pass builds a bloom filter per file.
// The second pass writes codes that no other file can contain straight to
// the store and holds back the rest, which are resolved exactly once every
// file has been read.
func (im *Importer) Import(ctx context.Context, files []string) (Stats, error) {
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := im.buildFilters(ctx, files)
	if err != nil {
		return Stats{}, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: writing coupons")

	held := make([]map[string]decimal.Decimal, len(files))
	writers, wctx := errgroup.WithContext(ctx)
	writers.SetLimit(im.opts.Workers)

	readers, rctx := errgroup.WithContext(wctx)
	for i, path := range files {
		readers.Go(func() error {
			candidates := make(map[string]decimal.Decimal)
			var count int64
			err := im.stream(rctx, path, func(code string, pct decimal.Decimal) {
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 2 progress", slog.String("file", path), slog.Int64("codes", count))
				}
				if seenElsewhere(filters, i, code) {
					if _, ok := candidates[code]; !ok {
						candidates[code] = pct
					}
					return
				}
				writers.Go(func() error { return im.write(wctx, code, pct) })
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			held[i] = candidates
			return nil
		})
	}
	if err := readers.Wait(); err != nil {
		// A failed write cancels the readers; report the write.
		if werr := writers.Wait(); werr != nil {
			return Stats{}, werr
		}
		return Stats{}, err
	}

	// Resolve held codes: the earliest file wins.
	resolved := make(map[string]entry)
	for i, candidates := range held {
		for code, pct := range candidates {
			first, ok := resolved[code]
			if !ok {
				resolved[code] = entry{pct: pct, file: i}
				continue
			}
			im.duplicate.Add(1)
			if !first.pct.Equal(pct) {
				im.conflicts.Add(1)
				slog.Warn("conflicting percentages, keeping earliest",
					slog.String("code", code),
					slog.String("kept", first.pct.String()),
					slog.String("dropped", pct.String()),
					slog.String("file", files[i]),
				)
			}
		}
	}
	for code, e := range resolved {
		writers.Go(func() error { return im.write(wctx, code, e.pct) })
	}

	if err := writers.Wait(); err != nil {
		return Stats{}, err
	}
	return im.stats(), nil
}

func (im *Importer) stats() Stats {
	return Stats{
		Inserted:            im.inserted.Load(),
		Existing:            im.existing.Load(),
		CrossFileDuplicates: im.duplicate.Load(),
		Conflicts:           im.conflicts.Load(),
		Invalid:             im.invalid.Load(),
	}
}

func (im *Importer) write(ctx context.Context, code string, pct decimal.Decimal) error {
	inserted, err := im.store.Insert(ctx, code, pct)
	if err != nil {
		return errors.Wrapf(err, "insert coupon %s", code)
	}
	if inserted {
		im.inserted.Add(1)
	} else {
		im.existing.Add(1)
	}
	return nil
}

// buildFilters creates one bloom filter per file, concurrently.
func (im *Importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.opts.Capacity, im.opts.FalsePositiveRate)
			var count int64
			if err := streamLines(ctx, path, func(line string) {
				if code, _, err := parseLine(line); err == nil && code != "" {
					filter.AddString(code)
					count++
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}

			slog.Info("pass 1 complete", slog.String("file", path), slog.Int64("codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func seenElsewhere(filters []*bloom.BloomFilter, self int, code string) bool {
	for j, f := range filters {
		if j != self && f.TestString(code) {
			return true
		}
	}
	return false
}

// stream calls fn for every valid coupon line of path and counts the rest.
func (im *Importer) stream(ctx context.Context, path string, fn func(code string, pct decimal.Decimal)) error {
	var once sync.Once
	line := 0
	return streamLines(ctx, path, func(text string) {
		line++
		code, pct, err := parseLine(text)
		switch {
		case err != nil:
			im.invalid.Add(1)
			once.Do(func() {
				slog.Warn("skipping invalid line",
					slog.String("file", path),
					slog.Int("line", line),
					slog.String("error", err.Error()),
				)
			})
		case code != "":
			fn(code, pct)
		}
	})
}

// parseLine parses "CODE,PERCENT". Blank lines, comments and a header row
// yield an empty code and no error.
func parseLine(line string) (string, decimal.Decimal, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", decimal.Zero, nil
	}

	code, rawPct, ok := strings.Cut(line, ",")
	if !ok {
		return "", decimal.Zero, errors.Errorf("missing percentage in %q", line)
	}
	code, rawPct = strings.TrimSpace(code), strings.TrimSpace(rawPct)
	if strings.EqualFold(code, "code") {
		return "", decimal.Zero, nil
	}
	if code == "" {
		return "", decimal.Zero, coupon.ErrEmptyCode
	}

	pct, err := decimal.NewFromString(rawPct)
	if err != nil {
		return "", decimal.Zero, errors.Wrapf(err, "parse percentage of %s", code)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return "", decimal.Zero, errors.Wrapf(coupon.ErrInvalidPercentage, "coupon %s", code)
	}
	return code, pct, nil
}

// streamLines opens a gzip-compressed file and calls fn for each line.
func streamLines(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
