package correlator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
)

// Supervisor runs one collection worker per anchor.
type Supervisor struct {
	correlators []*Correlator
	readTimeout time.Duration
}

// NewSupervisor groups correlators. readTimeout is the slowest transport
// read timeout among them; it bounds how far a window can overrun.
func NewSupervisor(readTimeout time.Duration, cs ...*Correlator) *Supervisor {
	return &Supervisor{correlators: cs, readTimeout: readTimeout}
}

// Correlators returns the supervised correlators.
func (s *Supervisor) Correlators() []*Correlator {
	return s.correlators
}

// CollectAll collects one window at gt on every anchor concurrently and
// returns the buckets keyed by anchor name. The first failing anchor
// cancels the others and nothing is stored for gt on any anchor, so
// buckets from earlier windows stay as they were.
func (s *Supervisor) CollectAll(ctx context.Context, window time.Duration, gt aoa.GroundTruth) (map[string]*Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, window+s.readTimeout)
	defer cancel()

	buckets := make([]*Bucket, len(s.correlators))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range s.correlators {
		i, c := i, c
		g.Go(func() error {
			b, err := c.collect(gctx, window, gt)
			if err != nil {
				return err
			}
			buckets[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*Bucket, len(buckets))
	for i, b := range buckets {
		c := s.correlators[i]
		c.store(b)
		out[c.Name()] = b
	}
	return out, nil
}

// Clear drops the buckets of every anchor.
func (s *Supervisor) Clear() {
	for _, c := range s.correlators {
		c.Clear()
	}
}
