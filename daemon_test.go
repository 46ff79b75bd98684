package testd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDaemonConfig(t *testing.T) *Config {
	t.Helper()
	manifest := filepath.Join(t.TempDir(), "suites.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
suites:
  - title: accounts
    file: src/accounts.spec.ts
`), 0644))

	cfg := NewDefaultConfig()
	cfg.Server.Port = 0
	cfg.Metrics.Enabled = false
	cfg.Runner.SuiteManifest = manifest
	return cfg
}

func TestNewDaemonBadManifest(t *testing.T) {
	cfg := testDaemonConfig(t)
	cfg.Runner.SuiteManifest = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewDaemon(log.New(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suite manifest")
}

func TestNewDaemonBadRedisURL(t *testing.T) {
	cfg := testDaemonConfig(t)
	cfg.Redis.URL = "not-a-redis-url"

	_, err := NewDaemon(log.New(), cfg)
	require.Error(t, err)
}

func TestDaemonServesAndShutsDown(t *testing.T) {
	d, err := NewDaemon(log.New(), testDaemonConfig(t))
	require.NoError(t, err)

	require.NoError(t, d.Start())
	require.NotEmpty(t, d.server.Addr())

	resp, err := http.Get(fmt.Sprintf("http://%s/health", d.server.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ready", health.Status)
	assert.False(t, health.Running)
	assert.Equal(t, 1, health.Suites)

	d.Shutdown()
	assert.Equal(t, "shutting_down", d.coord.State().Current().String())

	// Shutdown is idempotent.
	d.Shutdown()

	select {
	case err := <-d.Fatal():
		t.Fatalf("unexpected fatal error: %v", err)
	default:
	}
}

func TestDaemonRejectsRunsAfterShutdown(t *testing.T) {
	d, err := NewDaemon(log.New(), testDaemonConfig(t))
	require.NoError(t, err)
	require.NoError(t, d.Start())
	d.Shutdown()

	// The listener is gone; a fresh dial must fail.
	_, err = http.Get(fmt.Sprintf("http://%s/run", d.server.Addr()))
	require.Error(t, err)
}
