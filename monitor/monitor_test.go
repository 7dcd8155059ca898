package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/autoflow/autoflow/config"
	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/persistence"
	"github.com/autoflow/autoflow/persistence/inmem"
	"github.com/stretchr/testify/require"
)

func storeExecution(t *testing.T, storage persistence.ExecutionStorage, id string, status model.ExecutionStatus, automationRate float64, duration time.Duration) {
	t.Helper()
	started := time.Now().Add(-duration)
	execution := &model.WorkflowExecution{
		Id:             id,
		TemplateName:   "pipeline",
		Status:         status,
		StartedAt:      started,
		AutomationRate: automationRate,
	}
	if status.IsTerminal() {
		completed := started.Add(duration)
		execution.CompletedAt = &completed
	}
	require.NoError(t, storage.Save(execution))
}

func TestGetMetrics(t *testing.T) {
	storage := inmem.NewExecutionStorage()
	storeExecution(t, storage, "ex-1", model.EXECUTION_STATUS_COMPLETED, 1.0, 10*time.Second)
	storeExecution(t, storage, "ex-2", model.EXECUTION_STATUS_COMPLETED, 0.5, 20*time.Second)
	storeExecution(t, storage, "ex-3", model.EXECUTION_STATUS_FAILED, 0, 30*time.Second)
	storeExecution(t, storage, "ex-4", model.EXECUTION_STATUS_RUNNING, 0, time.Second)
	storeExecution(t, storage, "ex-5", model.EXECUTION_STATUS_PAUSED, 0, time.Second)

	m := NewHealthMonitor(storage, config.Config{}, &sync.WaitGroup{})
	metrics, err := m.GetMetrics()
	require.NoError(t, err)
	require.Equal(t, 2, metrics.CompletedCount)
	require.Equal(t, 1, metrics.FailedCount)
	require.Equal(t, 2, metrics.ActiveCount)
	require.InDelta(t, 0.5, metrics.AutomationRate, 0.001)
	require.InDelta(t, 2.0/3.0, metrics.SuccessRate, 0.001)
	require.Equal(t, 20*time.Second, metrics.AverageDuration)
}

func TestGetMetricsEmptyStore(t *testing.T) {
	m := NewHealthMonitor(inmem.NewExecutionStorage(), config.Config{}, &sync.WaitGroup{})
	metrics, err := m.GetMetrics()
	require.NoError(t, err)
	require.Zero(t, metrics.AutomationRate)
	require.Zero(t, metrics.SuccessRate)
	require.Zero(t, metrics.ActiveCount)
}

func TestScanRefreshesCache(t *testing.T) {
	storage := inmem.NewExecutionStorage()
	m := NewHealthMonitor(storage, config.Config{}, &sync.WaitGroup{})

	metrics, err := m.GetMetrics()
	require.NoError(t, err)
	require.Equal(t, 0, metrics.CompletedCount)

	storeExecution(t, storage, "ex-1", model.EXECUTION_STATUS_COMPLETED, 1.0, time.Second)
	m.scan()

	metrics, err = m.GetMetrics()
	require.NoError(t, err)
	require.Equal(t, 1, metrics.CompletedCount)
	require.Equal(t, 1.0, metrics.AutomationRate)
}
