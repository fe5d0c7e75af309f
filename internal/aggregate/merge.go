package aggregate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"marketpulse/internal/provider"
)

// Merge collapses several quote sets into one, keeping the newest quote per
// symbol. For equal timestamps the later set wins. Zero timestamps count as
// now.
func Merge(sets ...provider.Quotes) provider.Quotes {
	now := time.Now().UTC()
	out := make(provider.Quotes)
	for _, set := range sets {
		for sym, q := range set {
			if q.AsOf.IsZero() {
				q.AsOf = now
			}
			if cur, ok := out[sym]; ok && q.AsOf.Before(cur.AsOf) {
				continue
			}
			out[sym] = q
		}
	}
	return out
}

// Merged queries several providers for the same symbols concurrently and
// merges their answers. It fails only when every provider fails.
type Merged struct {
	Providers []provider.Provider
}

func (m Merged) Name() string {
	names := make([]string, len(m.Providers))
	for i, p := range m.Providers {
		names[i] = p.Name()
	}
	return strings.Join(names, "+")
}

func (m Merged) Fetch(ctx context.Context, symbols []string) (provider.Quotes, error) {
	if len(m.Providers) == 1 {
		return m.Providers[0].Fetch(ctx, symbols)
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		sets = make([]provider.Quotes, len(m.Providers))
		errs []error
	)
	for i, p := range m.Providers {
		g.Go(func() error {
			q, err := p.Fetch(ctx, symbols)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			sets[i] = q
			return nil
		})
	}
	_ = g.Wait()
	if len(errs) == len(m.Providers) {
		return nil, provider.Wrap(m.Name(), errors.Join(errs...))
	}
	return Merge(sets...), nil
}
