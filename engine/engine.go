package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/autoflow/autoflow/action"
	"github.com/autoflow/autoflow/analytics"
	"github.com/autoflow/autoflow/config"
	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/metadata"
	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/persistence"
	"github.com/autoflow/autoflow/resolver"
	"github.com/autoflow/autoflow/util"
	"github.com/google/uuid"
	c "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

type executionTask struct {
	ExecutionId  string
	TemplateName string
}

// ExecutionEngine drives workflow executions from PENDING to a terminal
// state on a bounded worker pool. All collaborators are injected; the engine
// owns no global state.
type ExecutionEngine struct {
	metadataService *metadata.Service
	storage         persistence.ExecutionStorage
	decider         Decider
	registry        *action.Registry
	collector       analytics.Collector
	conf            config.Config
	pool            *util.WorkerPool
	orderCache      *c.Cache
	locks           sync.Map
	controls        sync.Map
	interventions   sync.Map
}

// Decider is the slice of the decision engine the executor needs.
type Decider interface {
	Decide(decisionPoint string, data map[string]any, level model.AutomationLevel) model.DecisionResult
}

func NewExecutionEngine(metadataService *metadata.Service, storage persistence.ExecutionStorage,
	decider Decider, registry *action.Registry, collector analytics.Collector,
	conf config.Config, wg *sync.WaitGroup) *ExecutionEngine {
	if conf.WorkerPoolSize <= 0 {
		conf.WorkerPoolSize = 10
	}
	if conf.StepConcurrency <= 0 {
		conf.StepConcurrency = 4
	}
	if conf.QueueCapacity <= 0 {
		conf.QueueCapacity = 1000
	}
	if conf.DefaultStepTimeoutSeconds <= 0 {
		conf.DefaultStepTimeoutSeconds = 60
	}
	if conf.InterventionTimeoutSeconds <= 0 {
		conf.InterventionTimeoutSeconds = 300
	}
	if collector == nil {
		collector = analytics.NoopCollector{}
	}
	e := &ExecutionEngine{
		metadataService: metadataService,
		storage:         storage,
		decider:         decider,
		registry:        registry,
		collector:       collector,
		conf:            conf,
		orderCache:      c.New(10*time.Minute, 10*time.Minute),
	}
	e.pool = util.NewWorkerPool("execution-engine", conf.WorkerPoolSize, conf.QueueCapacity, wg, e.handleTask)
	// re-registering a template must not leave the old resolved order behind
	metadataService.OnTemplateChange(func(name string) {
		e.orderCache.Delete(name)
	})
	return e
}

func (e *ExecutionEngine) Start() {
	e.pool.Start()
}

func (e *ExecutionEngine) Stop() error {
	e.pool.Stop()
	return nil
}

// Submit validates the template name, persists a PENDING execution and
// enqueues it. The caller gets the execution id back immediately.
func (e *ExecutionEngine) Submit(templateName string, input map[string]any) (string, error) {
	tmpl, err := e.metadataService.GetTemplate(templateName)
	if err != nil {
		return "", err
	}
	if _, err := e.resolveOrder(tmpl); err != nil {
		return "", err
	}
	executionId := uuid.New().String()
	execution := &model.WorkflowExecution{
		Id:             executionId,
		TemplateName:   templateName,
		Status:         model.EXECUTION_STATUS_PENDING,
		Input:          input,
		StartedAt:      time.Now(),
		StepsCompleted: []string{},
		StepsFailed:    []string{},
		Results:        map[string]map[string]any{},
		Interventions:  []model.InterventionRecord{},
	}
	if err := e.storage.Save(execution); err != nil {
		return "", err
	}
	e.controls.Store(executionId, newExecutionControl())
	e.pool.Sender() <- executionTask{ExecutionId: executionId, TemplateName: templateName}
	logger.Info("workflow submitted", zap.String("template", templateName), zap.String("execution", executionId))
	return executionId, nil
}

// Cancel is cooperative: in-flight step operations are not interrupted, but
// no further steps are dispatched.
func (e *ExecutionEngine) Cancel(executionId string) error {
	ctrl, err := e.controlFor(executionId)
	if err != nil {
		return err
	}
	ctrl.cancel()
	logger.Info("execution cancel requested", zap.String("execution", executionId))
	return nil
}

func (e *ExecutionEngine) Pause(executionId string) error {
	ctrl, err := e.controlFor(executionId)
	if err != nil {
		return err
	}
	ctrl.pause()
	logger.Info("execution pause requested", zap.String("execution", executionId))
	return nil
}

func (e *ExecutionEngine) Resume(executionId string) error {
	ctrl, err := e.controlFor(executionId)
	if err != nil {
		return err
	}
	ctrl.unpause()
	logger.Info("execution resume requested", zap.String("execution", executionId))
	return nil
}

// ResolveIntervention delivers an operator response to a step blocked on
// human review.
func (e *ExecutionEngine) ResolveIntervention(executionId string, stepId string, resolution string) error {
	v, ok := e.interventions.Load(interventionKey(executionId, stepId))
	if !ok {
		return fmt.Errorf("no pending intervention for execution %s step %s", executionId, stepId)
	}
	select {
	case v.(chan string) <- resolution:
	default:
	}
	return nil
}

func (e *ExecutionEngine) controlFor(executionId string) (*executionControl, error) {
	v, ok := e.controls.Load(executionId)
	if !ok {
		execution, err := e.storage.Get(executionId)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("execution %s is not active, status %s", executionId, execution.Status)
	}
	return v.(*executionControl), nil
}

func (e *ExecutionEngine) resolveOrder(tmpl *model.WorkflowTemplate) ([]string, error) {
	if v, ok := e.orderCache.Get(tmpl.Name); ok {
		return v.([]string), nil
	}
	order, err := resolver.ResolveOrder(tmpl.Name, tmpl.Steps)
	if err != nil {
		return nil, err
	}
	e.orderCache.Set(tmpl.Name, order, c.DefaultExpiration)
	return order, nil
}

func (e *ExecutionEngine) lockFor(executionId string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(executionId, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// updateExecution applies fn to the stored execution under that execution's
// lock and persists the result. Fine-grained by design: concurrent branches
// of the same execution serialize here, independent executions do not.
func (e *ExecutionEngine) updateExecution(executionId string, fn func(*model.WorkflowExecution)) (*model.WorkflowExecution, error) {
	mu := e.lockFor(executionId)
	mu.Lock()
	defer mu.Unlock()
	execution, err := e.storage.Get(executionId)
	if err != nil {
		return nil, err
	}
	fn(execution)
	if err := e.storage.Save(execution); err != nil {
		return nil, err
	}
	return execution, nil
}

func interventionKey(executionId string, stepId string) string {
	return executionId + "/" + stepId
}
