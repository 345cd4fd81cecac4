package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordInference(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordInference("generate_haiku", "gemini", "ok", 250*time.Millisecond)
	m.RecordInference("generate_haiku", "gemini", "ok", time.Second)
	m.RecordInference("generate_haiku", "gemini", "error", time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(m.InferencesTotal.WithLabelValues("generate_haiku", "gemini", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.InferencesTotal.WithLabelValues("generate_haiku", "gemini", "error")))
}

func TestRecordTokens(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordTokens("gemini_flash_lite", 12, 30)

	require.Equal(t, 12.0, testutil.ToFloat64(m.TokensTotal.WithLabelValues("gemini_flash_lite", "input")))
	require.Equal(t, 30.0, testutil.ToFloat64(m.TokensTotal.WithLabelValues("gemini_flash_lite", "output")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordInference("f", "v", "ok", time.Second)
	m.RecordTokens("m", 1, 1)
	m.RecordStorageFailure()
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordStorageFailure()

	path := filepath.Join(t.TempDir(), "t0.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "t0_storage_write_failures_total 1")
}
