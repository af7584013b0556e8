package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "test", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "release", cfg.Mode)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, int64(32768), cfg.ReadLimit)
	require.Equal(t, 54*time.Second, cfg.PingPeriod)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout)
	require.True(t, cfg.ReclaimEmptyRooms)
	require.Equal(t, 2*time.Second, cfg.FatalGrace)
	require.Equal(t, int64(64<<20), cfg.MaxUploadBytes)
	require.Equal(t, uint16(10000), cfg.RTC.MinPort)
	require.Equal(t, uint16(20000), cfg.RTC.MaxPort)
}

func TestLoad_FileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
mode: debug
port: 9000
reclaim_empty_rooms: false
rtc:
  min_port: 40000
  max_port: 40100
  ice_servers: ["stun:example.org:3478"]
`), 0o600))
	t.Setenv("CONCLAVE_REQUEST_TIMEOUT", "3s")

	cfg, err := Load(New(), "", file)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Mode)
	require.Equal(t, 9000, cfg.Port)
	require.False(t, cfg.ReclaimEmptyRooms)
	require.Equal(t, 3*time.Second, cfg.RequestTimeout)
	require.Equal(t, uint16(40000), cfg.RTC.MinPort)
	require.Equal(t, []string{"stun:example.org:3478"}, cfg.RTC.ICEServers)
}

func TestLoad_RejectsInvertedPortRange(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("rtc:\n  min_port: 3000\n  max_port: 2000\n"), 0o600))
	_, err := Load(New(), "", file)
	require.Error(t, err)
}
