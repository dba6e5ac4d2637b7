package harness

import (
	"context"

	"github.com/DCArch/tpchmark/pkg/session"
	"github.com/sirupsen/logrus"
)

// RunOptions configures a full benchmark run.
type RunOptions struct {
	// Selection is the requested query subset; empty means the full suite.
	Selection []int

	// SkipWarmup skips the cache warmup phase entirely.
	SkipWarmup bool

	Warmup WarmupOptions

	// AdaptiveWarmup selects the memory-threshold warmup variant.
	AdaptiveWarmup bool
}

// Runner sequences the benchmark phases: warmup, instrumentation
// activation, timed execution, instrumentation deactivation, reporting.
// Deactivation is the only step guaranteed to run on every failure path.
type Runner interface {
	// Run executes the full phase sequence. The report is non-nil whenever
	// the execution phase was reached, even on error or interruption, so
	// the summary can always be printed.
	Run(ctx context.Context, sess session.Session, opts RunOptions) (*Report, error)
}

// NewRunner creates a phase runner from its three controllers.
func NewRunner(log logrus.FieldLogger, warmer Warmer, instr Instrumenter, exec Executor) Runner {
	return &runner{
		log:    log.WithField("component", "runner"),
		warmer: warmer,
		instr:  instr,
		exec:   exec,
	}
}

type runner struct {
	log    logrus.FieldLogger
	warmer Warmer
	instr  Instrumenter
	exec   Executor
}

// Ensure interface compliance.
var _ Runner = (*runner)(nil)

func (r *runner) Run(ctx context.Context, sess session.Session, opts RunOptions) (report *Report, retErr error) {
	// Warmup runs outside the measurement window.
	if opts.SkipWarmup {
		r.log.Info("Skipping warmup phase")
	} else if opts.AdaptiveWarmup {
		reached, err := r.warmer.RunAdaptive(ctx, sess, opts.Warmup)
		if err != nil {
			return nil, err
		}

		r.log.WithField("target_reached", reached).Info("Warmup phase finished")
	} else {
		if err := r.warmer.RunFixed(ctx, sess, opts.Selection, opts.Warmup); err != nil {
			return nil, err
		}
	}

	if err := r.instr.Activate(ctx, sess); err != nil {
		return nil, err
	}

	// The window must close on every exit path, including interruption,
	// so deactivation runs on a fresh context. Its failure is surfaced but
	// never masks the error that triggered the unwind.
	defer func() {
		if err := r.instr.Deactivate(context.Background(), sess); err != nil {
			r.log.WithError(err).Error("Failed to close simulation window")

			if retErr == nil {
				retErr = err
			}
		}
	}()

	report, execErr := r.exec.Run(ctx, sess, opts.Selection)
	if execErr != nil {
		return report, execErr
	}

	if err := r.instr.Deactivate(ctx, sess); err != nil {
		return report, err
	}

	return report, nil
}
