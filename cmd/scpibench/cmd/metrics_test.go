package cmd

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-scpi/session"
	"github.com/arloliu/go-scpi/worker"
)

type noopRunner struct{}

func (noopRunner) Setup(*worker.Engine) error               { return nil }
func (noopRunner) ExecuteOnce(*worker.Engine) (bool, error) { return false, nil }
func (noopRunner) Cleanup(*worker.Engine)                   {}

func TestMetricsHandler(t *testing.T) {
	e := worker.NewEngine("monitor", noopRunner{})
	mgr := session.NewManager()
	defer mgr.Close()

	require.NoError(t, mgr.Start("run-1"))

	h := metricsHandler(e, mgr)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `scpi_task_operations_total{task="monitor"} 0`)
	assert.Contains(t, body, `scpi_task_errors_total{task="monitor"} 0`)
	assert.Contains(t, body, `scpi_task_status{task="monitor"} 0`)
	assert.Contains(t, body, "scpi_session_active 1")
	assert.Contains(t, body, "scpi_buffer_rings 0")

	_, err := mgr.End()
	require.NoError(t, err)
}
