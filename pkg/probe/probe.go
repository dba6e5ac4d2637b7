package probe

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"
)

const bytesPerGB = 1024 * 1024 * 1024

// Probe reports the current resident memory of the database server.
// Used by the adaptive warmup controller to decide when caches are primed.
type Probe interface {
	// CurrentMemoryGB returns the server's resident memory in GiB.
	// Any sampling failure degrades to 0, never an error.
	CurrentMemoryGB(ctx context.Context) float64
}

// NewProcessProbe creates a Probe that sums the RSS of all local processes
// whose name contains pattern (typically "postgres").
func NewProcessProbe(log logrus.FieldLogger, pattern string) Probe {
	return &processProbe{
		log:     log.WithField("component", "memory-probe"),
		pattern: pattern,
	}
}

type processProbe struct {
	log     logrus.FieldLogger
	pattern string
}

// Ensure interface compliance.
var _ Probe = (*processProbe)(nil)

func (p *processProbe) CurrentMemoryGB(ctx context.Context) float64 {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		p.log.WithError(err).Warn("Could not list processes, treating memory as 0")

		return 0
	}

	var totalRSS uint64

	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			// Processes can exit between listing and inspection.
			continue
		}

		if !strings.Contains(name, p.pattern) {
			continue
		}

		mem, err := proc.MemoryInfoWithContext(ctx)
		if err != nil || mem == nil {
			continue
		}

		totalRSS += mem.RSS
	}

	return float64(totalRSS) / bytesPerGB
}
