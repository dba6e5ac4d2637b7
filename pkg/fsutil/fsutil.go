package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Owner holds a parsed UID:GID pair for result file ownership. Benchmark
// hosts often run the harness as root while results are consumed by a
// regular user.
type Owner struct {
	UID int
	GID int
}

// ParseOwner parses a "UID:GID" string. An empty string yields nil, meaning
// ownership is left untouched.
func ParseOwner(spec string) (*Owner, error) {
	if spec == "" {
		return nil, nil
	}

	parts := strings.Split(spec, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid owner %q, expected UID:GID", spec)
	}

	uid, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid UID %q: %w", parts[0], err)
	}

	gid, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid GID %q: %w", parts[1], err)
	}

	return &Owner{UID: uid, GID: gid}, nil
}

// Chown sets ownership when owner is non-nil. Best-effort.
func Chown(path string, owner *Owner) {
	if owner == nil {
		return
	}

	_ = os.Chown(path, owner.UID, owner.GID)
}

// ChownTree applies ownership to path and everything below it. Best-effort:
// entries that cannot be changed are skipped.
func ChownTree(root string, owner *Owner) {
	if owner == nil {
		return
	}

	_ = filepath.Walk(root, func(path string, _ os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		Chown(path, owner)

		return nil
	})
}
