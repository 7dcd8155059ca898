package monitor

import (
	"sync"
	"time"

	"github.com/autoflow/autoflow/config"
	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/persistence"
	"github.com/autoflow/autoflow/util"
	c "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const metricsCacheKey string = "aggregate_metrics"

type Metrics struct {
	AutomationRate  float64       `json:"automationRate"`
	SuccessRate     float64       `json:"successRate"`
	AverageDuration time.Duration `json:"averageDuration"`
	ActiveCount     int           `json:"activeCount"`
	CompletedCount  int           `json:"completedCount"`
	FailedCount     int           `json:"failedCount"`
}

// HealthMonitor periodically audits running executions and refreshes the
// cached aggregate metrics so that metric reads stay O(1).
type HealthMonitor struct {
	storage        persistence.ExecutionStorage
	cache          *c.Cache
	tickWorker     *util.TickWorker
	stuckThreshold time.Duration
}

func NewHealthMonitor(storage persistence.ExecutionStorage, conf config.Config, wg *sync.WaitGroup) *HealthMonitor {
	interval := conf.MonitorIntervalSeconds
	if interval <= 0 {
		interval = 30
	}
	stuckSeconds := conf.StuckThresholdSeconds
	if stuckSeconds <= 0 {
		stuckSeconds = 7200
	}
	m := &HealthMonitor{
		storage:        storage,
		cache:          c.New(c.NoExpiration, 10*time.Minute),
		stuckThreshold: time.Duration(stuckSeconds) * time.Second,
	}
	m.tickWorker = util.NewTickWorker("health-monitor", interval, wg, m.scan)
	return m
}

func (m *HealthMonitor) Start() {
	m.tickWorker.Start()
}

func (m *HealthMonitor) Stop() error {
	m.tickWorker.Stop()
	return nil
}

// scan warns about stuck or failure-heavy running executions and refreshes
// the metrics cache. Warnings never auto-cancel anything.
func (m *HealthMonitor) scan() {
	running, err := m.storage.ListRunning()
	if err != nil {
		logger.Error("error listing running executions", zap.Error(err))
		return
	}
	now := time.Now()
	for _, execution := range running {
		if now.Sub(execution.StartedAt) > m.stuckThreshold {
			logger.Warn("execution running longer than stuck threshold",
				zap.String("execution", execution.Id),
				zap.String("template", execution.TemplateName),
				zap.Duration("age", now.Sub(execution.StartedAt)))
		}
		if len(execution.StepsFailed) > len(execution.StepsCompleted) {
			logger.Warn("execution failing more steps than it completes",
				zap.String("execution", execution.Id),
				zap.Int("failed", len(execution.StepsFailed)),
				zap.Int("completed", len(execution.StepsCompleted)))
		}
	}
	metrics, err := m.compute()
	if err != nil {
		logger.Error("error recomputing metrics", zap.Error(err))
		return
	}
	m.cache.Set(metricsCacheKey, metrics, c.NoExpiration)
}

// GetMetrics serves the cached aggregates, recomputing only on a cold cache.
func (m *HealthMonitor) GetMetrics() (Metrics, error) {
	if v, ok := m.cache.Get(metricsCacheKey); ok {
		return v.(Metrics), nil
	}
	metrics, err := m.compute()
	if err != nil {
		return Metrics{}, err
	}
	m.cache.Set(metricsCacheKey, metrics, c.NoExpiration)
	return metrics, nil
}

func (m *HealthMonitor) compute() (Metrics, error) {
	executions, err := m.storage.List()
	if err != nil {
		return Metrics{}, err
	}
	var metrics Metrics
	var rateSum float64
	var rateCount int
	var durationSum time.Duration
	var durationCount int
	for _, execution := range executions {
		switch execution.Status {
		case model.EXECUTION_STATUS_COMPLETED:
			metrics.CompletedCount++
		case model.EXECUTION_STATUS_FAILED:
			metrics.FailedCount++
		case model.EXECUTION_STATUS_RUNNING, model.EXECUTION_STATUS_PAUSED, model.EXECUTION_STATUS_PENDING:
			metrics.ActiveCount++
		}
		if execution.Status.IsTerminal() {
			rateSum += execution.AutomationRate
			rateCount++
			if execution.CompletedAt != nil {
				durationSum += execution.CompletedAt.Sub(execution.StartedAt)
				durationCount++
			}
		}
	}
	if rateCount > 0 {
		metrics.AutomationRate = rateSum / float64(rateCount)
	}
	if metrics.CompletedCount+metrics.FailedCount > 0 {
		metrics.SuccessRate = float64(metrics.CompletedCount) / float64(metrics.CompletedCount+metrics.FailedCount)
	}
	if durationCount > 0 {
		metrics.AverageDuration = durationSum / time.Duration(durationCount)
	}
	return metrics, nil
}
