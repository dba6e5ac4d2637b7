package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Outcome records the result of a single query's execution attempt.
// It is finalized when the attempt completes and never mutated afterwards.
type Outcome struct {
	// Time is the elapsed wall-clock duration in seconds, bracketing the
	// execute+fetch step only.
	Time float64 `json:"time"`

	// Rows is the cardinality of the fetched result set. Meaningful only
	// on success.
	Rows int `json:"rows"`

	Success bool `json:"success"`

	// Error describes the failure. Present only when Success is false.
	Error string `json:"error,omitempty"`
}

// Report maps query identifiers to their execution outcomes. It is built
// once per run by the execution controller and never mutated afterwards.
// The JSON encoding keys outcomes by stringified query identifier; this is
// the harness's durable output format and must remain stable.
type Report struct {
	Outcomes map[int]*Outcome
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{Outcomes: make(map[int]*Outcome)}
}

// QueryIDs returns the recorded query identifiers in ascending order.
func (r *Report) QueryIDs() []int {
	ids := make([]int, 0, len(r.Outcomes))
	for id := range r.Outcomes {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

// TotalTime returns the summed elapsed time of all successful queries,
// in seconds.
func (r *Report) TotalTime() float64 {
	var total float64

	for _, outcome := range r.Outcomes {
		if outcome.Success {
			total += outcome.Time
		}
	}

	return total
}

// SuccessCount returns the number of successful outcomes.
func (r *Report) SuccessCount() int {
	var n int

	for _, outcome := range r.Outcomes {
		if outcome.Success {
			n++
		}
	}

	return n
}

// FailedCount returns the number of failed outcomes.
func (r *Report) FailedCount() int {
	return len(r.Outcomes) - r.SuccessCount()
}

// MarshalJSON encodes the report as a map keyed by stringified query
// identifier.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Outcomes)
}

// UnmarshalJSON decodes the stringified-identifier map form.
func (r *Report) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.Outcomes)
}

// Summarize writes the per-query result table and aggregate totals to w.
// An empty report prints zero totals.
func (r *Report) Summarize(w io.Writer) {
	separator := "============================================================"

	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "BENCHMARK RESULTS SUMMARY")
	fmt.Fprintln(w, separator)

	for _, id := range r.QueryIDs() {
		outcome := r.Outcomes[id]
		if outcome.Success {
			fmt.Fprintf(w, "Query %2d: %8.2fs (%6d rows) - OK\n", id, outcome.Time, outcome.Rows)
		} else {
			fmt.Fprintf(w, "Query %2d: %8s (%6s rows) - FAILED\n", id, "N/A", "N/A")
		}
	}

	fmt.Fprintln(w, "------------------------------------------------------------")
	fmt.Fprintf(w, "Total queries: %d\n", len(r.Outcomes))
	fmt.Fprintf(w, "Successful: %d\n", r.SuccessCount())
	fmt.Fprintf(w, "Failed: %d\n", r.FailedCount())
	fmt.Fprintf(w, "Total execution time: %.2fs\n", r.TotalTime())
	fmt.Fprintln(w, separator)
}

// WriteReport persists the report as indented JSON at path, creating parent
// directories as needed.
func WriteReport(path string, report *Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}

	return nil
}

// LoadReport reads a persisted report from path.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report file: %w", err)
	}

	report := NewReport()
	if err := json.Unmarshal(data, report); err != nil {
		return nil, fmt.Errorf("parsing report file: %w", err)
	}

	return report, nil
}
