package coupon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is a Repository whose MarkUsed is a compare-and-swap on IsUsed.
type memRepo struct {
	mu       sync.Mutex
	coupons  map[string]*Coupon
	findErr  error
	markErr  error
	finds    int
	mutation int
}

func newMemRepo(coupons ...Coupon) *memRepo {
	r := &memRepo{coupons: make(map[string]*Coupon)}
	for i := range coupons {
		c := coupons[i]
		r.coupons[c.Code] = &c
	}
	return r
}

func (r *memRepo) FindUnused(_ context.Context, code string) (*Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	if r.findErr != nil {
		return nil, r.findErr
	}
	c, ok := r.coupons[code]
	if !ok || c.IsUsed {
		return nil, ErrInvalidOrUsed
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) MarkUsed(_ context.Context, code, agentID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return false, r.markErr
	}
	c, ok := r.coupons[code]
	if !ok || c.IsUsed {
		return false, nil
	}
	r.mutation++
	c.IsUsed = true
	c.UsedBy = agentID
	c.UsedAt = &at
	return true, nil
}

func (r *memRepo) Exists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.coupons[code]
	return ok, nil
}

func (r *memRepo) ListUsed(_ context.Context) ([]Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var used []Coupon
	for _, c := range r.coupons {
		if c.IsUsed {
			used = append(used, *c)
		}
	}
	return used, nil
}

func TestProtocol_Validate(t *testing.T) {
	tests := []struct {
		name    string
		repo    *memRepo
		code    string
		wantErr error
		wantAny bool
	}{
		{
			name: "unused coupon is returned",
			repo: newMemRepo(Coupon{ID: "c1", Code: "SAVE20", DiscountPercentage: d("20")}),
			code: "SAVE20",
		},
		{
			name:    "empty code",
			repo:    newMemRepo(),
			code:    "",
			wantErr: ErrEmptyCode,
		},
		{
			name:    "unknown code",
			repo:    newMemRepo(),
			code:    "NOPE",
			wantErr: ErrInvalidOrUsed,
		},
		{
			name:    "used code is indistinguishable from unknown",
			repo:    newMemRepo(Coupon{ID: "c1", Code: "USED", DiscountPercentage: d("5"), IsUsed: true}),
			code:    "USED",
			wantErr: ErrInvalidOrUsed,
		},
		{
			name:    "codes match exactly",
			repo:    newMemRepo(Coupon{ID: "c1", Code: "SAVE20", DiscountPercentage: d("20")}),
			code:    "save20",
			wantErr: ErrInvalidOrUsed,
		},
		{
			name:    "repository failure is wrapped",
			repo:    &memRepo{coupons: map[string]*Coupon{}, findErr: errors.New("connection refused")},
			code:    "SAVE20",
			wantAny: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProtocol(tt.repo)
			got, err := p.Validate(context.Background(), tt.code)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			case tt.wantAny:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrInvalidOrUsed)
				assert.Contains(t, err.Error(), "lookup coupon")
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.code, got.Code)
			}
		})
	}
}

func TestProtocol_ValidateIsIdempotent(t *testing.T) {
	repo := newMemRepo(Coupon{ID: "c1", Code: "SAVE20", DiscountPercentage: d("20")})
	p := NewProtocol(repo)
	ctx := context.Background()

	first, err := p.Validate(ctx, "SAVE20")
	require.NoError(t, err)
	second, err := p.Validate(ctx, "SAVE20")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Zero(t, repo.mutation)
	assert.False(t, repo.coupons["SAVE20"].IsUsed)
}

func TestProtocol_Redeem(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("first redemption wins and records agent and time", func(t *testing.T) {
		repo := newMemRepo(Coupon{ID: "c1", Code: "SAVE20", DiscountPercentage: d("20")})
		p := NewProtocol(repo)
		p.now = func() time.Time { return fixedNow }

		require.NoError(t, p.Redeem(ctx, "SAVE20", "agent-1"))

		c := repo.coupons["SAVE20"]
		assert.True(t, c.IsUsed)
		assert.Equal(t, "agent-1", c.UsedBy)
		require.NotNil(t, c.UsedAt)
		assert.True(t, fixedNow.Equal(*c.UsedAt))
	})

	t.Run("second redemption is rejected", func(t *testing.T) {
		repo := newMemRepo(Coupon{ID: "c1", Code: "SAVE20", DiscountPercentage: d("20")})
		p := NewProtocol(repo)

		require.NoError(t, p.Redeem(ctx, "SAVE20", "agent-1"))
		err := p.Redeem(ctx, "SAVE20", "agent-2")
		require.ErrorIs(t, err, ErrAlreadyRedeemed)
		assert.Equal(t, "agent-1", repo.coupons["SAVE20"].UsedBy)
	})

	t.Run("unknown code", func(t *testing.T) {
		p := NewProtocol(newMemRepo())
		require.ErrorIs(t, p.Redeem(ctx, "NOPE", "agent-1"), ErrInvalidOrUsed)
	})

	t.Run("empty code", func(t *testing.T) {
		p := NewProtocol(newMemRepo())
		require.ErrorIs(t, p.Redeem(ctx, "", "agent-1"), ErrEmptyCode)
	})

	t.Run("repository failure is wrapped", func(t *testing.T) {
		repo := newMemRepo(Coupon{ID: "c1", Code: "SAVE20", DiscountPercentage: d("20")})
		repo.markErr = errors.New("timeout")
		p := NewProtocol(repo)

		err := p.Redeem(ctx, "SAVE20", "agent-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrAlreadyRedeemed)
		assert.Contains(t, err.Error(), "mark coupon used")
	})
}

func TestProtocol_RedeemIsMonotonic(t *testing.T) {
	repo := newMemRepo(Coupon{ID: "c1", Code: "ONCE", DiscountPercentage: d("10")})
	p := NewProtocol(repo)
	ctx := context.Background()

	_, err := p.Validate(ctx, "ONCE")
	require.NoError(t, err)
	require.NoError(t, p.Redeem(ctx, "ONCE", "agent-1"))

	for range 3 {
		_, err := p.Validate(ctx, "ONCE")
		require.ErrorIs(t, err, ErrInvalidOrUsed)
	}
	_, ok := p.Cached("ONCE")
	assert.False(t, ok, "redeemed coupon must not stay in the validation cache")
}

func TestProtocol_ConcurrentRedeem(t *testing.T) {
	repo := newMemRepo(Coupon{ID: "c1", Code: "RACE", DiscountPercentage: d("10")})
	p := NewProtocol(repo)

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.Redeem(context.Background(), "RACE", "agent")
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrAlreadyRedeemed):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, n-1, lost)
}

func TestProtocol_Cached(t *testing.T) {
	repo := newMemRepo(Coupon{ID: "c1", Code: "SAVE20", DiscountPercentage: d("20")})
	p := NewProtocol(repo)

	_, ok := p.Cached("SAVE20")
	require.False(t, ok)

	_, err := p.Validate(context.Background(), "SAVE20")
	require.NoError(t, err)

	got, ok := p.Cached("SAVE20")
	require.True(t, ok)
	assert.True(t, d("20").Equal(got.DiscountPercentage))

	repo.coupons["SAVE20"].IsUsed = true
	_, err = p.Validate(context.Background(), "SAVE20")
	require.ErrorIs(t, err, ErrInvalidOrUsed)
	_, ok = p.Cached("SAVE20")
	assert.False(t, ok)
}

func TestProtocol_ListUsed(t *testing.T) {
	repo := newMemRepo(
		Coupon{ID: "c1", Code: "A", DiscountPercentage: d("10")},
		Coupon{ID: "c2", Code: "B", DiscountPercentage: d("10")},
	)
	p := NewProtocol(repo)
	require.NoError(t, p.Redeem(context.Background(), "A", "agent-1"))

	used, err := p.ListUsed(context.Background())
	require.NoError(t, err)
	require.Len(t, used, 1)
	assert.Equal(t, "A", used[0].Code)
}
