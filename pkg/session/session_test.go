package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnConfigDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ConnConfig
		want string
	}{
		{
			name: "all fields",
			cfg: ConnConfig{
				Host:     "db.internal",
				Port:     5433,
				Database: "tpch_sf100",
				User:     "bench",
				Password: "secret",
				SSLMode:  "require",
			},
			want: "host=db.internal port=5433 dbname=tpch_sf100 user=bench password=secret sslmode=require",
		},
		{
			name: "empty password renders empty",
			cfg: ConnConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "tpch",
				User:     "postgres",
				SSLMode:  "disable",
			},
			want: "host=localhost port=5432 dbname=tpch user=postgres password= sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}
