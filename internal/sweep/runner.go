package sweep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/correlator"
	"github.com/relabs-tech/aoa_tester/internal/locate"
	"github.com/relabs-tech/aoa_tester/internal/logstore"
)

// State is where the runner is in the sweep.
type State int32

const (
	Idle State = iota
	Positioning
	Settling
	Collecting
)

var stateNames = [...]string{"idle", "positioning", "settling", "collecting"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Positioner is the part of the positioner the sweep needs.
type Positioner interface {
	Enable() error
	Disable() error
	MoveTo(gt aoa.GroundTruth) error
	Home() error
	Location() aoa.GroundTruth
}

// BucketFunc is called once per anchor after each window.
type BucketFunc func(anchor string, b *correlator.Bucket)

// Runner executes a Plan.
type Runner struct {
	Positioner Positioner
	Locators   []*locate.Locator
	Supervisor *correlator.Supervisor
	Plan       Plan

	// SessionDirs maps anchor names to the directory each window is
	// checkpointed into. Anchors without an entry are not written.
	SessionDirs map[string]string
	OnBucket    BucketFunc

	state atomic.Int32
}

// State returns the current state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
}

// Run walks the plan. Whatever happens, the positioner is sent home and
// disabled and the anchors stop reporting before Run returns.
func (r *Runner) Run(ctx context.Context) (err error) {
	if err := r.Plan.Validate(); err != nil {
		return err
	}
	r.setState(Idle)

	// Switching reporting off first also proves the links work.
	for _, l := range r.Locators {
		if err := l.Disable(); err != nil {
			return err
		}
	}
	if err := r.Positioner.Enable(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, r.finish())
	}()

	points := r.Plan.Orientations()
	for i, target := range points {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.setState(Positioning)
		if err := r.Positioner.MoveTo(target); err != nil {
			return err
		}
		gt := r.Positioner.Location()
		log.Printf("sweep: [%d/%d] sample azimuth: %d, tilt: %d", i+1, len(points), gt.Azimuth, gt.Elevation)

		r.setState(Settling)
		if err := sleep(ctx, r.Plan.Settle); err != nil {
			return err
		}

		r.setState(Collecting)
		for _, l := range r.Locators {
			if err := l.Flush(); err != nil {
				return err
			}
			if err := l.Enable(); err != nil {
				return err
			}
		}
		buckets, err := r.Supervisor.CollectAll(ctx, r.Plan.Window, gt)
		if err != nil {
			return err
		}
		if err := r.checkpoint(gt, buckets); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) checkpoint(gt aoa.GroundTruth, buckets map[string]*correlator.Bucket) error {
	for name, b := range buckets {
		if dir, ok := r.SessionDirs[name]; ok {
			if _, err := logstore.WriteBucket(dir, gt, b.RawLines); err != nil {
				return fmt.Errorf("sweep: checkpoint %s: %w", name, err)
			}
		}
		if r.OnBucket != nil {
			r.OnBucket(name, b)
		}
	}
	return nil
}

func (r *Runner) finish() error {
	r.setState(Idle)
	var errs []error
	for _, l := range r.Locators {
		errs = append(errs, l.Disable())
	}
	if err := r.Positioner.Home(); err != nil {
		errs = append(errs, fmt.Errorf("sweep: return home: %w", err))
	}
	errs = append(errs, r.Positioner.Disable())
	log.Printf("sweep: finished at %s", r.Positioner.Location())
	return errors.Join(errs...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
