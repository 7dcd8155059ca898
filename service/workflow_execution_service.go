package service

import (
	"github.com/autoflow/autoflow/engine"
	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/monitor"
	"github.com/autoflow/autoflow/persistence"
	"go.uber.org/zap"
)

// WorkflowExecutionService is the facade the API surface talks to.
type WorkflowExecutionService struct {
	executionEngine *engine.ExecutionEngine
	storage         persistence.ExecutionStorage
	healthMonitor   *monitor.HealthMonitor
}

func NewWorkflowExecutionService(executionEngine *engine.ExecutionEngine, storage persistence.ExecutionStorage, healthMonitor *monitor.HealthMonitor) *WorkflowExecutionService {
	return &WorkflowExecutionService{
		executionEngine: executionEngine,
		storage:         storage,
		healthMonitor:   healthMonitor,
	}
}

func (s *WorkflowExecutionService) StartWorkflow(name string, input map[string]any) (string, error) {
	logger.Info("starting workflow", zap.String("workflow", name))
	return s.executionEngine.Submit(name, input)
}

func (s *WorkflowExecutionService) GetExecution(executionId string) (*model.WorkflowExecution, error) {
	return s.storage.Get(executionId)
}

func (s *WorkflowExecutionService) CancelExecution(executionId string) error {
	return s.executionEngine.Cancel(executionId)
}

func (s *WorkflowExecutionService) PauseExecution(executionId string) error {
	return s.executionEngine.Pause(executionId)
}

func (s *WorkflowExecutionService) ResumeExecution(executionId string) error {
	return s.executionEngine.Resume(executionId)
}

func (s *WorkflowExecutionService) ResolveIntervention(executionId string, stepId string, resolution string) error {
	return s.executionEngine.ResolveIntervention(executionId, stepId, resolution)
}

func (s *WorkflowExecutionService) GetMetrics() (monitor.Metrics, error) {
	return s.healthMonitor.GetMetrics()
}

// PurgeExecution removes a terminal execution from the store. Running
// executions are refused.
func (s *WorkflowExecutionService) PurgeExecution(executionId string) error {
	execution, err := s.storage.Get(executionId)
	if err != nil {
		return err
	}
	if !execution.Status.IsTerminal() {
		return persistence.StorageLayerError{Message: "can not purge a non terminal execution"}
	}
	return s.storage.Delete(executionId)
}
