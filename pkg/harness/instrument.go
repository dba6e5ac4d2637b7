package harness

import (
	"context"
	"fmt"

	"github.com/DCArch/tpchmark/pkg/session"
	"github.com/sirupsen/logrus"
)

// InstrumentState is the lifecycle state of the instrumentation window.
type InstrumentState int

const (
	StateInactive InstrumentState = iota
	StateActivating
	StateActive
	StateDeactivating
)

// String returns the state name for logging.
func (s InstrumentState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateDeactivating:
		return "deactivating"
	default:
		return "unknown"
	}
}

// Instrumenter opens and closes the measurement window around the timed
// run. It owns the guarantee that deactivation is attempted exactly once
// per successful activation, on every failure path.
type Instrumenter interface {
	// Activate provisions the instrumentation extension and starts the
	// simulation window. On failure the window is not considered open.
	Activate(ctx context.Context, sess session.Session) error

	// Deactivate ends the simulation window. A no-op unless the window is
	// open, so deferred calls after an explicit call are safe.
	Deactivate(ctx context.Context, sess session.Session) error

	// State reports the current window state.
	State() InstrumentState
}

// NewInstrumenter creates an Instrumenter for the named extension.
// The extension supplies <ext>_start_simulation and <ext>_end_simulation.
func NewInstrumenter(log logrus.FieldLogger, extension string) Instrumenter {
	return &instrumenter{
		log:       log.WithField("component", "instrumenter"),
		extension: extension,
	}
}

type instrumenter struct {
	log       logrus.FieldLogger
	extension string
	state     InstrumentState
}

// Ensure interface compliance.
var _ Instrumenter = (*instrumenter)(nil)

func (i *instrumenter) State() InstrumentState {
	return i.state
}

// Activate issues the idempotent provisioning call followed by the
// start-of-window call, committing after each. Any failure leaves the
// controller inactive; no partial state is assumed active.
func (i *instrumenter) Activate(ctx context.Context, sess session.Session) error {
	if i.state != StateInactive {
		return fmt.Errorf("cannot activate instrumentation from state %s", i.state)
	}

	i.state = StateActivating

	i.log.WithField("extension", i.extension).Info("Activating simulation hooks")

	if err := i.runCommitted(ctx, sess,
		fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s;", i.extension)); err != nil {
		i.state = StateInactive

		return fmt.Errorf("provisioning %s extension: %w", i.extension, err)
	}

	if err := i.runCommitted(ctx, sess,
		fmt.Sprintf("SELECT %s_start_simulation();", i.extension)); err != nil {
		i.state = StateInactive

		return fmt.Errorf("starting simulation window: %w", err)
	}

	i.state = StateActive

	i.log.Info("Simulation window opened")

	return nil
}

// Deactivate issues the end-of-window call and commits. It must run even
// when the execution phase failed or the run was interrupted; callers defer
// it on a background context.
func (i *instrumenter) Deactivate(ctx context.Context, sess session.Session) error {
	if i.state != StateActive {
		return nil
	}

	i.state = StateDeactivating

	i.log.WithField("extension", i.extension).Info("Deactivating simulation hooks")

	err := i.runCommitted(ctx, sess,
		fmt.Sprintf("SELECT %s_end_simulation();", i.extension))

	// One attempt only: the window counts as closed even if the call failed.
	i.state = StateInactive

	if err != nil {
		return fmt.Errorf("ending simulation window: %w", err)
	}

	i.log.Info("Simulation window closed")

	return nil
}

// runCommitted executes a statement and commits it.
func (i *instrumenter) runCommitted(ctx context.Context, sess session.Session, sql string) error {
	if err := sess.Execute(ctx, sql); err != nil {
		return err
	}

	return sess.Commit(ctx)
}
