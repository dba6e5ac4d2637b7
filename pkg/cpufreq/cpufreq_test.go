package cpufreq

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

// fakeSysfs builds a cpu device tree with the given per-CPU governors.
// A CPU with an empty governor gets no cpufreq node at all.
func fakeSysfs(t *testing.T, governors ...string) string {
	t.Helper()

	root := t.TempDir()

	for i, governor := range governors {
		cpuDir := filepath.Join(root, "cpu"+string(rune('0'+i)))
		require.NoError(t, os.MkdirAll(cpuDir, 0755))

		if governor == "" {
			continue
		}

		freqDir := filepath.Join(cpuDir, "cpufreq")
		require.NoError(t, os.MkdirAll(freqDir, 0755))
		require.NoError(t, os.WriteFile(
			filepath.Join(freqDir, "scaling_governor"), []byte(governor+"\n"), 0644))
	}

	// Non-CPU entries the enumerator must ignore.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cpufreq"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cpuidle"), 0755))

	return root
}

func readGovernor(t *testing.T, root string, cpu int) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root,
		"cpu"+string(rune('0'+cpu)), "cpufreq", "scaling_governor"))
	require.NoError(t, err)

	return string(data)
}

func TestPinSwitchesAllGovernors(t *testing.T) {
	root := fakeSysfs(t, "powersave", "schedutil")
	p := NewPinner(testLogger(), root)

	require.NoError(t, p.Pin(context.Background(), PerformanceGovernor))

	assert.Equal(t, "performance", readGovernor(t, root, 0))
	assert.Equal(t, "performance", readGovernor(t, root, 1))
}

func TestRestorePutsOriginalsBack(t *testing.T) {
	root := fakeSysfs(t, "powersave", "schedutil")
	p := NewPinner(testLogger(), root)

	require.NoError(t, p.Pin(context.Background(), PerformanceGovernor))
	require.NoError(t, p.Restore(context.Background()))

	assert.Equal(t, "powersave", readGovernor(t, root, 0))
	assert.Equal(t, "schedutil", readGovernor(t, root, 1))
}

func TestPinSkipsCPUsWithoutCpufreq(t *testing.T) {
	root := fakeSysfs(t, "powersave", "")
	p := NewPinner(testLogger(), root)

	require.NoError(t, p.Pin(context.Background(), PerformanceGovernor))
	assert.Equal(t, "performance", readGovernor(t, root, 0))
}

func TestRestoreWithoutPinIsNoop(t *testing.T) {
	p := NewPinner(testLogger(), t.TempDir())

	require.NoError(t, p.Restore(context.Background()))
}

func TestPinMissingSysfsRoot(t *testing.T) {
	p := NewPinner(testLogger(), filepath.Join(t.TempDir(), "absent"))

	err := p.Pin(context.Background(), PerformanceGovernor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing CPUs")
}
