package cpufreq

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultSysfsPath is the kernel's CPU device tree root.
const DefaultSysfsPath = "/sys/devices/system/cpu"

// PerformanceGovernor disables frequency scaling so query timings are not
// skewed by the CPU ramping up mid-measurement.
const PerformanceGovernor = "performance"

// Pinner pins the scaling governor of all online CPUs for the duration of
// a benchmark run and restores the original governors afterwards.
type Pinner interface {
	// Pin records each CPU's current governor and switches it to the
	// target. Safe to call on hosts without cpufreq support; CPUs lacking
	// the sysfs node are skipped.
	Pin(ctx context.Context, governor string) error

	// Restore writes back the governors recorded by Pin. A no-op when
	// nothing was pinned.
	Restore(ctx context.Context) error
}

// NewPinner creates a Pinner over the given sysfs root.
func NewPinner(log logrus.FieldLogger, sysfsPath string) Pinner {
	return &pinner{
		log:       log.WithField("component", "cpufreq"),
		sysfsPath: sysfsPath,
		original:  make(map[int]string),
	}
}

type pinner struct {
	log       logrus.FieldLogger
	sysfsPath string

	// original maps CPU id to the governor in effect before Pin.
	original map[int]string
}

// Ensure interface compliance.
var _ Pinner = (*pinner)(nil)

func (p *pinner) Pin(ctx context.Context, governor string) error {
	cpus, err := p.onlineCPUs()
	if err != nil {
		return fmt.Errorf("listing CPUs: %w", err)
	}

	for _, cpu := range cpus {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		path := p.governorPath(cpu)

		current, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return fmt.Errorf("reading governor for cpu%d: %w", cpu, err)
		}

		if err := os.WriteFile(path, []byte(governor), 0644); err != nil {
			return fmt.Errorf("setting governor for cpu%d: %w", cpu, err)
		}

		p.original[cpu] = strings.TrimSpace(string(current))
	}

	p.log.WithFields(logrus.Fields{
		"cpus":     len(p.original),
		"governor": governor,
	}).Info("CPU governors pinned")

	return nil
}

func (p *pinner) Restore(ctx context.Context) error {
	if len(p.original) == 0 {
		return nil
	}

	var failed []int

	for cpu, governor := range p.original {
		if err := os.WriteFile(p.governorPath(cpu), []byte(governor), 0644); err != nil {
			failed = append(failed, cpu)
		}
	}

	restored := len(p.original) - len(failed)
	p.original = make(map[int]string)

	if len(failed) > 0 {
		sort.Ints(failed)

		return fmt.Errorf("restoring governors for cpus %v", failed)
	}

	p.log.WithField("cpus", restored).Info("CPU governors restored")

	return nil
}

func (p *pinner) governorPath(cpu int) string {
	return filepath.Join(p.sysfsPath, fmt.Sprintf("cpu%d", cpu), "cpufreq", "scaling_governor")
}

// onlineCPUs enumerates cpuN directories under the sysfs root.
func (p *pinner) onlineCPUs() ([]int, error) {
	entries, err := os.ReadDir(p.sysfsPath)
	if err != nil {
		return nil, err
	}

	var cpus []int

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "cpu") {
			continue
		}

		id, err := strconv.Atoi(name[3:])
		if err != nil {
			// cpuidle, cpufreq and friends are not CPUs.
			continue
		}

		cpus = append(cpus, id)
	}

	sort.Ints(cpus)

	return cpus, nil
}
