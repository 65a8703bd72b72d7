package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-desk/internal/domain/coupon"
)

type memStore struct {
	mu      sync.Mutex
	coupons map[string]decimal.Decimal
	err     error
}

func (m *memStore) Insert(_ context.Context, code string, pct decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.coupons[code]; ok {
		return false, nil
	}
	m.coupons[code] = pct
	return true, nil
}

func writeGz(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return path
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.gz", "code,percent\nAAA,10\nBBB,20\nbad line\n\nCCC,150\n"),
		writeGz(t, dir, "b.gz", "BBB,25\nDDD,5\nAAA,10\n"),
	}
	store := &memStore{coupons: map[string]decimal.Decimal{
		"DDD": decimal.RequireFromString("30"),
	}}

	stats, err := NewImporter(store, Options{Capacity: 1000, Workers: 2}).Import(t.Context(), files)
	require.NoError(t, err)

	assert.Equal(t, Stats{
		Inserted:            2,
		Existing:            1,
		CrossFileDuplicates: 2,
		Conflicts:           1,
		Invalid:             2,
	}, stats)

	want := map[string]string{"AAA": "10", "BBB": "20", "DDD": "30"}
	require.Len(t, store.coupons, len(want))
	for code, pct := range want {
		expected := decimal.RequireFromString(pct)
		assert.True(t, expected.Equal(store.coupons[code]), "expected %s at %s, got %s", code, expected, store.coupons[code])
	}
}

func TestImport_StoreError(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeGz(t, dir, "a.gz", "AAA,10\n")}
	store := &memStore{coupons: map[string]decimal.Decimal{}, err: errors.New("connection refused")}

	_, err := NewImporter(store, Options{Capacity: 100}).Import(t.Context(), files)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert coupon AAA")
}

func TestImport_MissingFile(t *testing.T) {
	store := &memStore{coupons: map[string]decimal.Decimal{}}

	_, err := NewImporter(store, Options{}).Import(t.Context(), []string{filepath.Join(t.TempDir(), "nope.gz")})
	require.Error(t, err)
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantCode string
		wantPct  string
		wantErr  error
		anyErr   bool
	}{
		{name: "valid", line: "SAVE10,10", wantCode: "SAVE10", wantPct: "10"},
		{name: "spaces trimmed", line: "  SAVE10 , 12.5 ", wantCode: "SAVE10", wantPct: "12.5"},
		{name: "case kept", line: "save10,10", wantCode: "save10", wantPct: "10"},
		{name: "blank", line: "   "},
		{name: "comment", line: "# exported 2025-01-01"},
		{name: "header", line: "Code,Percent"},
		{name: "no comma", line: "SAVE10", anyErr: true},
		{name: "empty code", line: ",10", wantErr: coupon.ErrEmptyCode},
		{name: "bad number", line: "SAVE10,ten", anyErr: true},
		{name: "over 100", line: "SAVE10,100.5", wantErr: coupon.ErrInvalidPercentage},
		{name: "negative", line: "SAVE10,-1", wantErr: coupon.ErrInvalidPercentage},
		{name: "bounds", line: "FREE,100", wantCode: "FREE", wantPct: "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, pct, err := parseLine(tt.line)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
				return
			case tt.anyErr:
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantPct != "" {
				want := decimal.RequireFromString(tt.wantPct)
				assert.True(t, want.Equal(pct), "expected %s, got %s", want, pct)
			}
		})
	}
}
