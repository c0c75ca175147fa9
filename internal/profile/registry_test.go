package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmsman/internal/position"
)

const sampleProfiles = `
profiles:
  conservative:
    description: 低频稳健离场
    trailing:
      mode: fixed_pct
      activation_roi: 12
      trail_pct: 0.008
    profit_targets:
      - trigger_roi: 5
        lock_fraction: 0.5
      - trigger_roi: 10
        lock_fraction: 0.7
  momentum:
    trailing:
      mode: staircase
      activation_roi: 8
      steps:
        - trigger_roi: 10
          trail_pct: 0.03
        - trigger_roi: 30
          trail_pct: 0.015
symbols:
  BTCUSDT: conservative
  ETHUSDT: momentum
`

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistryLoads(t *testing.T) {
	r, err := NewRegistry(writeProfiles(t, sampleProfiles), false)
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Len(t, snap.Profiles, 2)
	assert.Equal(t, int64(1), snap.Version)

	p, ok := r.ForSymbol("btcusdt")
	require.True(t, ok)
	assert.Equal(t, "conservative", p.ID)
	assert.Equal(t, position.ModeFixedPct, p.Trailing.Mode)
	assert.Len(t, p.ProfitTargets, 2)

	p, ok = r.Get("momentum")
	require.True(t, ok)
	assert.Equal(t, position.ModeStaircase, p.Trailing.Mode)
	require.Len(t, p.Trailing.Steps, 2)

	_, ok = r.ForSymbol("DOGEUSDT")
	assert.False(t, ok)
}

func TestRegistryRejectsUnknownMode(t *testing.T) {
	bad := `
profiles:
  broken:
    trailing:
      mode: teleport
      activation_roi: 5
`
	_, err := NewRegistry(writeProfiles(t, bad), false)
	assert.Error(t, err, "schema 必须拒绝未知追踪模式")
}

func TestRegistryRejectsDanglingSymbolBinding(t *testing.T) {
	bad := `
profiles:
  ok:
    trailing:
      mode: fixed_pct
      activation_roi: 5
      trail_pct: 0.01
symbols:
  BTCUSDT: missing
`
	_, err := NewRegistry(writeProfiles(t, bad), false)
	assert.Error(t, err)
}

func TestRegistryRejectsNonIncreasingTargets(t *testing.T) {
	bad := `
profiles:
  ok:
    trailing:
      mode: fixed_pct
      activation_roi: 5
      trail_pct: 0.01
    profit_targets:
      - trigger_roi: 10
        lock_fraction: 0.5
      - trigger_roi: 10
        lock_fraction: 0.6
`
	_, err := NewRegistry(writeProfiles(t, bad), false)
	assert.Error(t, err)
}
