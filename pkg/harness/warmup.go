package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DCArch/tpchmark/pkg/probe"
	"github.com/DCArch/tpchmark/pkg/query"
	"github.com/DCArch/tpchmark/pkg/session"
	"github.com/sirupsen/logrus"
)

// RepresentativeQueries is the fixed warmup subset. These queries touch
// varied parts of the schema and are cheap enough to repeat.
var RepresentativeQueries = []int{1, 3, 6, 12, 14}

const (
	// reachedFraction of the memory target at which warmup stops early.
	reachedFraction = 0.95

	// advisoryFraction below which a configuration advisory is emitted
	// after all rounds are exhausted.
	advisoryFraction = 0.90
)

// WarmupOptions configures a warmup run.
type WarmupOptions struct {
	// Iterations is the round count for the fixed-iteration variant.
	Iterations int

	// Rounds is the maximum round count for the adaptive variant.
	Rounds int

	// TargetMemoryGB is the adaptive variant's memory target.
	TargetMemoryGB float64
}

// Warmer primes database caches by repeatedly executing the representative
// query subset before the measured window opens.
type Warmer interface {
	// RunFixed runs the representative subset (intersected with selection)
	// for a fixed iteration count. Individual query failures are rolled
	// back and the round continues.
	RunFixed(ctx context.Context, sess session.Session, selection []int, opts WarmupOptions) error

	// RunAdaptive runs warmup rounds until the memory probe reports the
	// target threshold was reached, checking after every query. Returns
	// whether the threshold was reached.
	RunAdaptive(ctx context.Context, sess session.Session, opts WarmupOptions) (bool, error)
}

// NewWarmer creates a Warmer. The probe may be nil for the fixed variant.
func NewWarmer(log logrus.FieldLogger, loader query.Loader, memProbe probe.Probe) Warmer {
	return &warmer{
		log:    log.WithField("component", "warmup"),
		loader: loader,
		probe:  memProbe,
	}
}

type warmer struct {
	log    logrus.FieldLogger
	loader query.Loader
	probe  probe.Probe
}

// Ensure interface compliance.
var _ Warmer = (*warmer)(nil)

// warmupSubset intersects the representative queries with the requested
// selection, preserving representative order. An empty selection means the
// full suite, so the whole subset applies.
func warmupSubset(selection []int) []int {
	if len(selection) == 0 {
		return RepresentativeQueries
	}

	requested := make(map[int]struct{}, len(selection))
	for _, id := range selection {
		requested[id] = struct{}{}
	}

	subset := make([]int, 0, len(RepresentativeQueries))

	for _, id := range RepresentativeQueries {
		if _, ok := requested[id]; ok {
			subset = append(subset, id)
		}
	}

	return subset
}

func (w *warmer) RunFixed(ctx context.Context, sess session.Session, selection []int, opts WarmupOptions) error {
	subset := warmupSubset(selection)
	if len(subset) == 0 {
		w.log.Info("No representative queries in selection, skipping warmup")

		return nil
	}

	w.log.WithFields(logrus.Fields{
		"iterations": opts.Iterations,
		"queries":    subset,
	}).Info("Starting warmup phase")

	for iteration := 1; iteration <= opts.Iterations; iteration++ {
		w.log.WithFields(logrus.Fields{
			"iteration": iteration,
			"of":        opts.Iterations,
		}).Info("Warmup iteration")

		if err := w.runRound(ctx, sess, subset, nil); err != nil {
			return err
		}

		if err := sess.Commit(ctx); err != nil {
			return fmt.Errorf("committing warmup iteration %d: %w", iteration, err)
		}
	}

	w.log.Info("Warmup completed")

	return nil
}

func (w *warmer) RunAdaptive(ctx context.Context, sess session.Session, opts WarmupOptions) (bool, error) {
	subset := RepresentativeQueries
	target := opts.TargetMemoryGB
	reachedAt := target * reachedFraction

	w.log.WithFields(logrus.Fields{
		"target_gb": target,
		"rounds":    opts.Rounds,
		"queries":   subset,
	}).Info("Starting adaptive warmup phase")

	for round := 1; round <= opts.Rounds; round++ {
		w.log.WithFields(logrus.Fields{
			"round": round,
			"of":    opts.Rounds,
		}).Info("Warmup round")

		// Probe after every query so excess warmup work stops as soon as
		// the target is met, not only at round boundaries.
		reached := false
		check := func() bool {
			mem := w.sampleMemory(ctx)
			if mem >= reachedAt {
				w.log.WithFields(logrus.Fields{
					"memory_gb":    fmt.Sprintf("%.2f", mem),
					"threshold_gb": fmt.Sprintf("%.2f", reachedAt),
				}).Info("Memory threshold reached")

				reached = true
			}

			return reached
		}

		if err := w.runRound(ctx, sess, subset, check); err != nil {
			return false, err
		}

		if err := sess.Commit(ctx); err != nil {
			return false, fmt.Errorf("committing warmup round %d: %w", round, err)
		}

		if reached {
			return true, nil
		}

		// Round-level check catches growth the per-query samples missed.
		if check() {
			return true, nil
		}
	}

	finalMem := w.sampleMemory(ctx)

	w.log.WithField("memory_gb", fmt.Sprintf("%.2f", finalMem)).Info("Warmup rounds exhausted")

	if finalMem < target*advisoryFraction {
		w.log.WithFields(logrus.Fields{
			"memory_gb": fmt.Sprintf("%.2f", finalMem),
			"target_gb": fmt.Sprintf("%.2f", target),
		}).Warn("Did not reach target memory; consider more warmup rounds, " +
			"a larger scale factor, or higher shared_buffers")
	}

	return false, nil
}

// runRound executes one pass over the subset. A non-nil check is invoked
// after each query; a true result ends the round early.
func (w *warmer) runRound(ctx context.Context, sess session.Session, subset []int, check func() bool) error {
	for _, id := range subset {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sql, err := w.loader.Load(id)
		if err != nil {
			if errors.Is(err, query.ErrNotFound) {
				w.log.WithField("query", id).Warn("Query file not found, skipping")

				continue
			}

			return fmt.Errorf("loading warmup query %d: %w", id, err)
		}

		log := w.log.WithField("query", id)
		log.Info("Running warmup query")

		start := time.Now()

		rows, err := sess.Query(ctx, sql)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			log.WithError(err).Warn("Warmup query failed")

			if err := sess.Rollback(ctx); err != nil {
				return fmt.Errorf("rolling back warmup query %d: %w", id, err)
			}

			continue
		}

		log.WithFields(logrus.Fields{
			"elapsed": fmt.Sprintf("%.2fs", time.Since(start).Seconds()),
			"rows":    rows,
		}).Info("Warmup query completed")

		if check != nil && check() {
			return nil
		}
	}

	return nil
}

// sampleMemory reads the probe, degrading to zero when unavailable.
func (w *warmer) sampleMemory(ctx context.Context) float64 {
	if w.probe == nil {
		return 0
	}

	mem := w.probe.CurrentMemoryGB(ctx)

	w.log.WithField("memory_gb", fmt.Sprintf("%.2f", mem)).Debug("Sampled server memory")

	return mem
}
