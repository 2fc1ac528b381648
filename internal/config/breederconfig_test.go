package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "breeder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadBreederConfig_AcceptsMisspelledReconaissanceKey(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
breeder:
  name: linux_performance
  uuid: abc-123
run:
  parallel: 1
objectives:
  - name: tcp_rtt
    direction: minimize
    reconaissance:
      service: prometheus
      query: "some_query"
      samples: 1
`)

	cfg, err := LoadBreederConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Objectives, 1)
	assert.Equal(t, "prometheus", cfg.Objectives[0].Reconnaissance.Service)
}

func TestLoadBreederConfig_IntegerLiteralTracking(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
breeder:
  name: linux_performance
  uuid: abc-123
run:
  parallel: 1
objectives:
  - name: tcp_rtt
    direction: minimize
settings:
  sysctl:
    net.core.netdev_budget:
      constraints:
        - lower: 100
          upper: 1000
          step: 50
  cpufreq:
    min_freq_ghz:
      constraints:
        - lower: 1.0
          upper: 3.5
          step: 0.1
`)

	cfg, err := LoadBreederConfig(path)
	require.NoError(t, err)

	intParam := cfg.Settings.Sysctl["net.core.netdev_budget"].Constraints[0]
	assert.True(t, intParam.IsAllInteger())

	floatParam := cfg.Settings.CPUFreq["min_freq_ghz"].Constraints[0]
	assert.False(t, floatParam.IsAllInteger())
}

func TestParseTimingEnd(t *testing.T) {
	t.Parallel()

	secs, err := ParseTimingEnd("1h")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), secs)

	secs, err = ParseTimingEnd("30m")
	require.NoError(t, err)
	assert.Equal(t, int64(1800), secs)

	secs, err = ParseTimingEnd("2d")
	require.NoError(t, err)
	assert.Equal(t, int64(172800), secs)

	_, err = ParseTimingEnd("garbage")
	assert.Error(t, err)
}
