package fsutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOwner(t *testing.T) {
	tests := []struct {
		name        string
		spec        string
		want        *Owner
		errContains string
	}{
		{
			name: "empty spec means untouched",
			spec: "",
			want: nil,
		},
		{
			name: "valid pair",
			spec: "1000:1000",
			want: &Owner{UID: 1000, GID: 1000},
		},
		{
			name: "root",
			spec: "0:0",
			want: &Owner{UID: 0, GID: 0},
		},
		{
			name:        "missing gid",
			spec:        "1000",
			errContains: "expected UID:GID",
		},
		{
			name:        "non-numeric uid",
			spec:        "bench:1000",
			errContains: "invalid UID",
		},
		{
			name:        "non-numeric gid",
			spec:        "1000:bench",
			errContains: "invalid GID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOwner(tt.spec)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChownNilOwnerIsNoop(t *testing.T) {
	// Must not panic or touch anything.
	Chown(t.TempDir(), nil)
	ChownTree(t.TempDir(), nil)
}
