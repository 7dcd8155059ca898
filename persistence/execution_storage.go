package persistence

import (
	"github.com/autoflow/autoflow/model"
)

// ExecutionStorage persists workflow execution snapshots. All mutation of an
// execution happens in the engine under a per-execution lock; the store only
// ever sees full snapshots.
type ExecutionStorage interface {
	Save(execution *model.WorkflowExecution) error
	Get(executionId string) (*model.WorkflowExecution, error)
	List() ([]*model.WorkflowExecution, error)
	ListRunning() ([]*model.WorkflowExecution, error)
	Delete(executionId string) error
}
