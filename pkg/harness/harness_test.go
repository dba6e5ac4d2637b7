package harness

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/DCArch/tpchmark/pkg/query"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

// fakeSession records every statement and transaction boundary in order.
type fakeSession struct {
	calls []string

	executeFn func(ctx context.Context, sql string) error
	queryFn   func(ctx context.Context, sql string) (int, error)

	commitErr   error
	rollbackErr error
}

func (f *fakeSession) Execute(ctx context.Context, sql string) error {
	f.calls = append(f.calls, "execute:"+sql)

	if f.executeFn != nil {
		return f.executeFn(ctx, sql)
	}

	return nil
}

func (f *fakeSession) Query(ctx context.Context, sql string) (int, error) {
	f.calls = append(f.calls, "query:"+sql)

	if f.queryFn != nil {
		return f.queryFn(ctx, sql)
	}

	return 1, nil
}

func (f *fakeSession) Commit(ctx context.Context) error {
	f.calls = append(f.calls, "commit")

	return f.commitErr
}

func (f *fakeSession) Rollback(ctx context.Context) error {
	f.calls = append(f.calls, "rollback")

	return f.rollbackErr
}

func (f *fakeSession) Close(ctx context.Context) error {
	f.calls = append(f.calls, "close")

	return nil
}

func (f *fakeSession) count(call string) int {
	var n int

	for _, c := range f.calls {
		if c == call {
			n++
		}
	}

	return n
}

func (f *fakeSession) queries() []string {
	var out []string

	for _, c := range f.calls {
		if len(c) > 6 && c[:6] == "query:" {
			out = append(out, c[6:])
		}
	}

	return out
}

// fakeLoader serves canned SQL keyed by query number.
type fakeLoader struct {
	queries map[int]string
}

func (f *fakeLoader) Load(id int) (string, error) {
	sql, ok := f.queries[id]
	if !ok {
		return "", fmt.Errorf("query %d: %w", id, query.ErrNotFound)
	}

	return sql, nil
}

func loaderFor(ids ...int) *fakeLoader {
	queries := make(map[int]string, len(ids))
	for _, id := range ids {
		queries[id] = fmt.Sprintf("SELECT %d;", id)
	}

	return &fakeLoader{queries: queries}
}

// fakeProbe replays a fixed sequence of memory samples, repeating the last
// one once exhausted.
type fakeProbe struct {
	samples []float64
	next    int
}

func (f *fakeProbe) CurrentMemoryGB(ctx context.Context) float64 {
	if len(f.samples) == 0 {
		return 0
	}

	if f.next >= len(f.samples) {
		return f.samples[len(f.samples)-1]
	}

	sample := f.samples[f.next]
	f.next++

	return sample
}
