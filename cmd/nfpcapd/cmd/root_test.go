package cmd

import (
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfpcapd-go/nfpcapd/internal/config"
)

func TestApplyCLIOverrides(t *testing.T) {
	tests := []struct {
		name        string
		cli         *cliFlags
		expectError bool
		check       func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "lz4 selected",
			cli:  &cliFlags{compressLZ4: true, expire: "300:60"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "lz4", cfg.Flow.Compression)
			},
		},
		{
			name: "zstd selected",
			cli:  &cliFlags{compressZstd: true, expire: "120:30"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "zstd", cfg.Flow.Compression)
				assert.Equal(t, 120, cfg.Flow.ActiveSeconds)
				assert.Equal(t, 30, cfg.Flow.InactiveSeconds)
			},
		},
		{
			name: "gzip selected",
			cli:  &cliFlags{compressGzip: true, expire: "300:60"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "gzip", cfg.Flow.Compression)
			},
		},
		{
			name:        "mutually exclusive compression flags rejected",
			cli:         &cliFlags{compressLZ4: true, compressZstd: true, expire: "300:60"},
			expectError: true,
		},
		{
			name:        "malformed expiry rejected",
			cli:         &cliFlags{expire: "not-a-pair"},
			expectError: true,
		},
		{
			name:        "non-numeric expiry rejected",
			cli:         &cliFlags{expire: "abc:60"},
			expectError: true,
		},
		{
			name: "pcap subdir index mirrors flow subdir index",
			cli:  &cliFlags{expire: "300:60"},
			check: func(t *testing.T, cfg *config.Config) {
				cfg.Flow.SubdirIndex = 2
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New()
			if tt.check != nil {
				tt.check(t, cfg)
			}
			err := applyCLIOverrides(cfg, tt.cli)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, cfg.Flow.SubdirIndex, cfg.Pcap.SubdirIndex)
		})
	}
}

func TestBindEnvRespectsExplicitFlags(t *testing.T) {
	testCfg := config.New()
	cmd := &cobra.Command{}
	registerFlags(cmd, testCfg, &cliFlags{})

	require.NoError(t, os.Setenv("NFPCAPD_IDENT", "from-env"))
	require.NoError(t, os.Setenv("NFPCAPD_INTERFACE", "eth9"))
	t.Cleanup(func() {
		os.Unsetenv("NFPCAPD_IDENT")
		os.Unsetenv("NFPCAPD_INTERFACE")
	})

	require.NoError(t, cmd.Flags().Set("interface", "eth0"))
	require.NoError(t, bindEnv(cmd, testCfg))

	// explicitly-set flag wins over the environment
	assert.Equal(t, "eth0", testCfg.Capture.Interface)
	// unset flag is filled in from the environment
	assert.Equal(t, "from-env", testCfg.Ident)
}
