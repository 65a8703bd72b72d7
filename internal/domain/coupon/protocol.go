package coupon

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// Protocol implements coupon validation and one-time redemption on top of a
// Repository. Successful validations are remembered so that discounts can
// still be computed while the remote store is unreachable.
type Protocol struct {
	repo Repository
	now  func() time.Time

	mu        sync.RWMutex
	validated map[string]Coupon
}

// NewProtocol creates a Protocol backed by the given Repository.
func NewProtocol(repo Repository) *Protocol {
	return &Protocol{
		repo:      repo,
		now:       time.Now,
		validated: make(map[string]Coupon),
	}
}

// Validate looks up an unused coupon by exact code. It never mutates the
// coupon. Repository failures other than a miss are wrapped and returned.
func (p *Protocol) Validate(ctx context.Context, code string) (*Coupon, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}

	c, err := p.repo.FindUnused(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidOrUsed) {
			p.forget(code)
			return nil, ErrInvalidOrUsed
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	p.mu.Lock()
	p.validated[code] = *c
	p.mu.Unlock()

	return c, nil
}

// Cached returns the last successful validation of code, if any.
func (p *Protocol) Cached(code string) (*Coupon, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.validated[code]
	if !ok {
		return nil, false
	}
	return &c, true
}

// Redeem flips the coupon to used, attributed to agentID at the current time.
// Only one caller can win for a given code: the rest get ErrAlreadyRedeemed.
// Unknown codes yield ErrInvalidOrUsed.
func (p *Protocol) Redeem(ctx context.Context, code, agentID string) error {
	if code == "" {
		return ErrEmptyCode
	}

	updated, err := p.repo.MarkUsed(ctx, code, agentID, p.now().UTC())
	if err != nil {
		return errors.Wrap(err, "mark coupon used")
	}
	p.forget(code)
	if updated {
		return nil
	}

	exists, err := p.repo.Exists(ctx, code)
	if err != nil {
		return errors.Wrap(err, "check coupon exists")
	}
	if exists {
		return ErrAlreadyRedeemed
	}
	return ErrInvalidOrUsed
}

// ListUsed returns every redeemed coupon.
func (p *Protocol) ListUsed(ctx context.Context) ([]Coupon, error) {
	coupons, err := p.repo.ListUsed(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list used coupons")
	}
	return coupons, nil
}

func (p *Protocol) forget(code string) {
	p.mu.Lock()
	delete(p.validated, code)
	p.mu.Unlock()
}
