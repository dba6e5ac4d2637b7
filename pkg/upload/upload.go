package upload

import (
	"context"
)

// Uploader pushes benchmark results to remote storage.
type Uploader interface {
	// Preflight verifies the destination is reachable and writable.
	// Called before the benchmark starts so upload failures surface early.
	Preflight(ctx context.Context) error

	// Upload walks localDir and uploads all files under it.
	Upload(ctx context.Context, localDir string) error
}
