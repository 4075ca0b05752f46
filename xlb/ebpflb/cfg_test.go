package ebpflb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := []byte("balancer_prog: /opt/lb/balancer_kern.o\nhealthchecking_prog: /opt/lb/hc_kern.o\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/lb/balancer_kern.o", cfg.BalancerProg)
	assert.Equal(t, "/opt/lb/hc_kern.o", cfg.HealthCheckProg)
	// Unset fields keep their defaults.
	assert.Equal(t, datasize.MB, cfg.MonitorBufferSize)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("balancer_prog: [\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "./balancer_kern.o", cfg.BalancerProg)
	assert.Empty(t, cfg.HealthCheckProg)
}
