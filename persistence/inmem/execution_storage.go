package inmem

import (
	"sync"

	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/persistence"
)

var _ persistence.ExecutionStorage = new(executionStorage)

// executionStorage keeps deep clones so a stored execution never changes
// under a caller that already read it.
type executionStorage struct {
	mu         sync.RWMutex
	executions map[string]*model.WorkflowExecution
}

func NewExecutionStorage() *executionStorage {
	return &executionStorage{
		executions: make(map[string]*model.WorkflowExecution),
	}
}

func (s *executionStorage) Save(execution *model.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[execution.Id] = execution.Clone()
	return nil
}

func (s *executionStorage) Get(executionId string) (*model.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	execution, ok := s.executions[executionId]
	if !ok {
		return nil, persistence.NotFoundError{ExecutionId: executionId}
	}
	return execution.Clone(), nil
}

func (s *executionStorage) List() ([]*model.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.WorkflowExecution, 0, len(s.executions))
	for _, execution := range s.executions {
		out = append(out, execution.Clone())
	}
	return out, nil
}

func (s *executionStorage) ListRunning() ([]*model.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.WorkflowExecution
	for _, execution := range s.executions {
		if execution.Status == model.EXECUTION_STATUS_RUNNING || execution.Status == model.EXECUTION_STATUS_PAUSED {
			out = append(out, execution.Clone())
		}
	}
	return out, nil
}

func (s *executionStorage) Delete(executionId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[executionId]; !ok {
		return persistence.NotFoundError{ExecutionId: executionId}
	}
	delete(s.executions, executionId)
	return nil
}
