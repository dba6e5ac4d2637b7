package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/DCArch/tpchmark/pkg/query"
	"github.com/DCArch/tpchmark/pkg/session"
	"github.com/sirupsen/logrus"
)

// Executor runs the benchmark query set once, measuring wall-clock time and
// result cardinality per query. One query's failure never aborts the suite.
type Executor interface {
	// Run executes the selected queries in ascending order and returns
	// their outcomes. The report is returned even on error so partial
	// results can still be summarized.
	Run(ctx context.Context, sess session.Session, selection []int) (*Report, error)
}

// NewExecutor creates an Executor over the given query loader.
func NewExecutor(log logrus.FieldLogger, loader query.Loader) Executor {
	return &executor{
		log:    log.WithField("component", "executor"),
		loader: loader,
	}
}

type executor struct {
	log    logrus.FieldLogger
	loader query.Loader
}

// Ensure interface compliance.
var _ Executor = (*executor)(nil)

// NormalizeSelection returns the selection in ascending order, or the full
// suite 1..SuiteSize when the selection is empty.
func NormalizeSelection(selection []int) []int {
	if len(selection) == 0 {
		full := make([]int, query.SuiteSize)
		for i := range full {
			full[i] = i + 1
		}

		return full
	}

	ordered := make([]int, len(selection))
	copy(ordered, selection)
	sort.Ints(ordered)

	return ordered
}

func (e *executor) Run(ctx context.Context, sess session.Session, selection []int) (*Report, error) {
	report := NewReport()

	e.log.WithField("queries", len(NormalizeSelection(selection))).Info("Running benchmark queries")

	for _, id := range NormalizeSelection(selection) {
		select {
		case <-ctx.Done():
			e.log.Warn("Execution interrupted between queries")

			return report, ctx.Err()
		default:
		}

		sql, err := e.loader.Load(id)
		if err != nil {
			if errors.Is(err, query.ErrNotFound) {
				e.log.WithField("query", id).Warn("Query file not found, skipping")

				continue
			}

			return report, fmt.Errorf("loading query %d: %w", id, err)
		}

		log := e.log.WithField("query", id)
		log.Info("Running query")

		outcome := e.runOne(ctx, sess, sql)

		// A failure caused by cancellation is an interruption, not a query
		// outcome; stop without recording it.
		if ctx.Err() != nil {
			e.log.WithField("query", id).Warn("Execution interrupted during query")

			return report, ctx.Err()
		}

		report.Outcomes[id] = outcome

		if outcome.Success {
			log.WithFields(logrus.Fields{
				"elapsed": fmt.Sprintf("%.2fs", outcome.Time),
				"rows":    outcome.Rows,
			}).Info("Query completed")
		} else {
			log.WithField("error", outcome.Error).Warn("Query failed")

			if err := sess.Rollback(ctx); err != nil {
				return report, fmt.Errorf("rolling back after query %d: %w", id, err)
			}
		}

		// Commit after every query: persists successful work and clears
		// any aborted-transaction state so the session stays usable.
		if err := sess.Commit(ctx); err != nil {
			return report, fmt.Errorf("committing after query %d: %w", id, err)
		}
	}

	return report, nil
}

// runOne times the execute+fetch step of a single query and finalizes its
// outcome. Connection and load time are excluded from the measurement.
func (e *executor) runOne(ctx context.Context, sess session.Session, sql string) *Outcome {
	start := time.Now()

	rows, err := sess.Query(ctx, sql)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		return &Outcome{Error: err.Error()}
	}

	return &Outcome{
		Time:    elapsed,
		Rows:    rows,
		Success: true,
	}
}
