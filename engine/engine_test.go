package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autoflow/autoflow/action"
	"github.com/autoflow/autoflow/config"
	"github.com/autoflow/autoflow/decision"
	"github.com/autoflow/autoflow/metadata"
	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/persistence"
	"github.com/autoflow/autoflow/persistence/inmem"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine   *ExecutionEngine
	storage  persistence.ExecutionStorage
	metadata *metadata.Service
	registry *action.Registry
	decider  *decision.Engine
}

func newFixture(t *testing.T, conf config.Config) *fixture {
	t.Helper()
	registry := action.NewRegistry()
	decider := decision.NewEngine()
	storage := inmem.NewExecutionStorage()
	metadataService := metadata.NewService(metadata.NewInMemMetadataStorage(), registry)
	wg := &sync.WaitGroup{}
	e := NewExecutionEngine(metadataService, storage, decider, registry, nil, conf, wg)
	e.Start()
	t.Cleanup(func() {
		e.Stop()
		wg.Wait()
	})
	return &fixture{
		engine:   e,
		storage:  storage,
		metadata: metadataService,
		registry: registry,
		decider:  decider,
	}
}

func (f *fixture) waitTerminal(t *testing.T, executionId string) *model.WorkflowExecution {
	t.Helper()
	var execution *model.WorkflowExecution
	require.Eventually(t, func() bool {
		var err error
		execution, err = f.storage.Get(executionId)
		if err != nil {
			return false
		}
		return execution.Status.IsTerminal()
	}, 10*time.Second, 10*time.Millisecond)
	return execution
}

func succeedingAction(name string) action.Action {
	return action.NewFuncAction(name, func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		return map[string]any{"success": true, "step": ctx.StepId}, nil
	})
}

func chainTemplate(name string, operation string, level model.AutomationLevel) model.WorkflowTemplate {
	return model.WorkflowTemplate{
		Name: name,
		Steps: []model.StepDef{
			{Id: "a", Name: "a", Operation: operation, AutomationLevel: level},
			{Id: "b", Name: "b", Operation: operation, AutomationLevel: level, Dependencies: []string{"a"}},
			{Id: "c", Name: "c", Operation: operation, AutomationLevel: level, Dependencies: []string{"b"}},
		},
	}
}

func TestThreeStepChainCompletes(t *testing.T) {
	f := newFixture(t, config.Config{})
	require.NoError(t, f.registry.Register(succeedingAction("work")))
	require.NoError(t, f.metadata.RegisterTemplate(chainTemplate("chain", "work", model.AUTOMATION_LEVEL_FULL_AUTO)))

	executionId, err := f.engine.Submit("chain", map[string]any{"videoId": "v-1"})
	require.NoError(t, err)

	execution := f.waitTerminal(t, executionId)
	require.Equal(t, model.EXECUTION_STATUS_COMPLETED, execution.Status)
	require.Equal(t, []string{"a", "b", "c"}, execution.StepsCompleted)
	require.Empty(t, execution.StepsFailed)
	require.Empty(t, execution.Interventions)
	require.Equal(t, 1.0, execution.AutomationRate)
	require.NotNil(t, execution.CompletedAt)
	require.Contains(t, execution.Results, "c")
}

func TestSubmitUnknownTemplate(t *testing.T) {
	f := newFixture(t, config.Config{})
	_, err := f.engine.Submit("ghost", nil)
	require.Error(t, err)
	_, ok := err.(metadata.UnknownTemplateError)
	require.True(t, ok)
}

func TestRetryExhaustionFailsExecution(t *testing.T) {
	f := newFixture(t, config.Config{})
	require.NoError(t, f.registry.Register(succeedingAction("work")))
	var invocations int32
	require.NoError(t, f.registry.Register(action.NewFuncAction("flaky", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		atomic.AddInt32(&invocations, 1)
		return nil, fmt.Errorf("downstream unavailable")
	})))

	tmpl := chainTemplate("retry-chain", "work", model.AUTOMATION_LEVEL_FULL_AUTO)
	tmpl.Steps[1].Operation = "flaky"
	tmpl.Steps[1].MaxRetries = 2
	require.NoError(t, f.metadata.RegisterTemplate(tmpl))

	executionId, err := f.engine.Submit("retry-chain", nil)
	require.NoError(t, err)

	execution := f.waitTerminal(t, executionId)
	require.Equal(t, model.EXECUTION_STATUS_FAILED, execution.Status)
	// 1 initial + 2 retries
	require.Equal(t, int32(3), atomic.LoadInt32(&invocations))
	require.Equal(t, []string{"a"}, execution.StepsCompleted)
	require.Equal(t, []string{"b"}, execution.StepsFailed)
	require.NotContains(t, execution.Results, "c")
	require.NotEmpty(t, execution.Error)
}

func TestFailureHandlerRunsOnExhaustion(t *testing.T) {
	f := newFixture(t, config.Config{})
	var handled int32
	require.NoError(t, f.registry.Register(action.NewFuncAction("always-down", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		return nil, fmt.Errorf("boom")
	})))
	require.NoError(t, f.registry.Register(action.NewFuncAction("cleanup", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		atomic.AddInt32(&handled, 1)
		return nil, fmt.Errorf("handler failed too")
	})))
	tmpl := model.WorkflowTemplate{
		Name: "with-handler",
		Steps: []model.StepDef{
			{Id: "a", Name: "a", Operation: "always-down", AutomationLevel: model.AUTOMATION_LEVEL_FULL_AUTO, OnFailure: "cleanup"},
		},
	}
	require.NoError(t, f.metadata.RegisterTemplate(tmpl))

	executionId, err := f.engine.Submit("with-handler", nil)
	require.NoError(t, err)

	execution := f.waitTerminal(t, executionId)
	// the handler's own error never masks the step failure
	require.Equal(t, model.EXECUTION_STATUS_FAILED, execution.Status)
	require.Equal(t, int32(1), atomic.LoadInt32(&handled))
	require.Contains(t, execution.Error, "step a failed")
}

func TestSemiAutoEscalationTimesOut(t *testing.T) {
	f := newFixture(t, config.Config{InterventionTimeoutSeconds: 1})
	min := 0.9
	require.NoError(t, f.registry.Register(action.NewFuncAction("score", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		return map[string]any{"score": 0.5, "confidence": 0.5}, nil
	})))
	f.decider.RegisterRules(DEFAULT_DECISION_POINT, decision.Rules{ApproveAbove: 0.9, RejectBelow: 0.1})
	tmpl := model.WorkflowTemplate{
		Name: "escalating",
		Steps: []model.StepDef{
			{
				Id:              "a",
				Name:            "a",
				Operation:       "score",
				AutomationLevel: model.AUTOMATION_LEVEL_SEMI_AUTO,
				SuccessCriteria: map[string]model.Criterion{"score": {Min: &min}},
			},
		},
	}
	require.NoError(t, f.metadata.RegisterTemplate(tmpl))

	executionId, err := f.engine.Submit("escalating", nil)
	require.NoError(t, err)

	execution := f.waitTerminal(t, executionId)
	require.Equal(t, model.EXECUTION_STATUS_FAILED, execution.Status)
	require.Len(t, execution.Interventions, 1)
	require.Equal(t, "a", execution.Interventions[0].StepId)
	require.Equal(t, model.RESOLUTION_TIMEOUT, execution.Interventions[0].Resolution)
	require.Equal(t, []string{"a"}, execution.StepsFailed)
	// the escalated step is excluded from the automation rate numerator
	require.Equal(t, 0.0, execution.AutomationRate)
}

func TestInterventionApprovalCompletesStep(t *testing.T) {
	f := newFixture(t, config.Config{InterventionTimeoutSeconds: 30})
	min := 0.9
	require.NoError(t, f.registry.Register(action.NewFuncAction("score", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		return map[string]any{"score": 0.5, "confidence": 0.5}, nil
	})))
	tmpl := model.WorkflowTemplate{
		Name: "approvable",
		Steps: []model.StepDef{
			{
				Id:              "a",
				Name:            "a",
				Operation:       "score",
				AutomationLevel: model.AUTOMATION_LEVEL_SUPERVISED,
				SuccessCriteria: map[string]model.Criterion{"score": {Min: &min}},
			},
		},
	}
	require.NoError(t, f.metadata.RegisterTemplate(tmpl))

	executionId, err := f.engine.Submit("approvable", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.engine.ResolveIntervention(executionId, "a", model.RESOLUTION_APPROVED) == nil
	}, 5*time.Second, 10*time.Millisecond)

	execution := f.waitTerminal(t, executionId)
	require.Equal(t, model.EXECUTION_STATUS_COMPLETED, execution.Status)
	require.Equal(t, []string{"a"}, execution.StepsCompleted)
	require.Len(t, execution.Interventions, 1)
	require.Equal(t, model.RESOLUTION_APPROVED, execution.Interventions[0].Resolution)
	// the step ran but required a human, so it does not count as automated
	require.Equal(t, 0.0, execution.AutomationRate)
}

func TestDiamondRespectsDependencies(t *testing.T) {
	f := newFixture(t, config.Config{StepConcurrency: 4})
	var mu sync.Mutex
	var started []string
	require.NoError(t, f.registry.Register(action.NewFuncAction("track", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		mu.Lock()
		started = append(started, ctx.StepId)
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		return map[string]any{"success": true}, nil
	})))
	tmpl := model.WorkflowTemplate{
		Name: "diamond",
		Steps: []model.StepDef{
			{Id: "a", Name: "a", Operation: "track", AutomationLevel: model.AUTOMATION_LEVEL_FULL_AUTO},
			{Id: "b", Name: "b", Operation: "track", AutomationLevel: model.AUTOMATION_LEVEL_FULL_AUTO, Dependencies: []string{"a"}},
			{Id: "c", Name: "c", Operation: "track", AutomationLevel: model.AUTOMATION_LEVEL_FULL_AUTO, Dependencies: []string{"a"}},
			{Id: "d", Name: "d", Operation: "track", AutomationLevel: model.AUTOMATION_LEVEL_FULL_AUTO, Dependencies: []string{"b", "c"}},
		},
	}
	require.NoError(t, f.metadata.RegisterTemplate(tmpl))

	executionId, err := f.engine.Submit("diamond", nil)
	require.NoError(t, err)

	execution := f.waitTerminal(t, executionId)
	require.Equal(t, model.EXECUTION_STATUS_COMPLETED, execution.Status)
	require.Len(t, execution.StepsCompleted, 4)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "a", started[0])
	require.Equal(t, "d", started[3])
}

func TestCancelStopsDispatch(t *testing.T) {
	f := newFixture(t, config.Config{})
	require.NoError(t, f.registry.Register(action.NewFuncAction("slow", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		time.Sleep(200 * time.Millisecond)
		return map[string]any{"success": true}, nil
	})))
	require.NoError(t, f.metadata.RegisterTemplate(chainTemplate("cancellable", "slow", model.AUTOMATION_LEVEL_FULL_AUTO)))

	executionId, err := f.engine.Submit("cancellable", nil)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, f.engine.Cancel(executionId))

	execution := f.waitTerminal(t, executionId)
	require.Equal(t, model.EXECUTION_STATUS_CANCELLED, execution.Status)
	require.Less(t, len(execution.StepsCompleted), 3)
}

func TestPauseDefersDispatchUntilResume(t *testing.T) {
	f := newFixture(t, config.Config{})
	require.NoError(t, f.registry.Register(action.NewFuncAction("slow", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		time.Sleep(50 * time.Millisecond)
		return map[string]any{"success": true}, nil
	})))
	require.NoError(t, f.metadata.RegisterTemplate(chainTemplate("pausable", "slow", model.AUTOMATION_LEVEL_FULL_AUTO)))

	executionId, err := f.engine.Submit("pausable", nil)
	require.NoError(t, err)
	require.NoError(t, f.engine.Pause(executionId))

	require.Eventually(t, func() bool {
		execution, err := f.storage.Get(executionId)
		return err == nil && execution.Status == model.EXECUTION_STATUS_PAUSED
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.engine.Resume(executionId))
	execution := f.waitTerminal(t, executionId)
	require.Equal(t, model.EXECUTION_STATUS_COMPLETED, execution.Status)
	require.Equal(t, []string{"a", "b", "c"}, execution.StepsCompleted)
}

func TestStepTimeoutIsRetriedAsOperationError(t *testing.T) {
	f := newFixture(t, config.Config{})
	var invocations int32
	require.NoError(t, f.registry.Register(action.NewFuncAction("hang", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		atomic.AddInt32(&invocations, 1)
		time.Sleep(5 * time.Second)
		return map[string]any{"success": true}, nil
	})))
	tmpl := model.WorkflowTemplate{
		Name: "hanging",
		Steps: []model.StepDef{
			{Id: "a", Name: "a", Operation: "hang", AutomationLevel: model.AUTOMATION_LEVEL_FULL_AUTO, TimeoutSeconds: 1, MaxRetries: 1},
		},
	}
	require.NoError(t, f.metadata.RegisterTemplate(tmpl))

	executionId, err := f.engine.Submit("hanging", nil)
	require.NoError(t, err)

	execution := f.waitTerminal(t, executionId)
	require.Equal(t, model.EXECUTION_STATUS_FAILED, execution.Status)
	require.Equal(t, int32(2), atomic.LoadInt32(&invocations))
	require.Contains(t, execution.Error, "timed out")
}

func TestTerminalExecutionReadsAreIdempotent(t *testing.T) {
	f := newFixture(t, config.Config{})
	require.NoError(t, f.registry.Register(succeedingAction("work")))
	require.NoError(t, f.metadata.RegisterTemplate(chainTemplate("stable", "work", model.AUTOMATION_LEVEL_FULL_AUTO)))

	executionId, err := f.engine.Submit("stable", nil)
	require.NoError(t, err)
	f.waitTerminal(t, executionId)

	first, err := f.storage.Get(executionId)
	require.NoError(t, err)
	second, err := f.storage.Get(executionId)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestParamsResolveAgainstPriorResults(t *testing.T) {
	f := newFixture(t, config.Config{})
	require.NoError(t, f.registry.Register(action.NewFuncAction("produce", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		return map[string]any{"videoUrl": "https://example.com/v-1"}, nil
	})))
	var seen any
	require.NoError(t, f.registry.Register(action.NewFuncAction("consume", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		seen = params["source"]
		return map[string]any{"success": true}, nil
	})))
	tmpl := model.WorkflowTemplate{
		Name: "piped",
		Steps: []model.StepDef{
			{Id: "fetch", Name: "fetch", Operation: "produce", AutomationLevel: model.AUTOMATION_LEVEL_FULL_AUTO},
			{
				Id: "process", Name: "process", Operation: "consume",
				AutomationLevel: model.AUTOMATION_LEVEL_FULL_AUTO,
				Dependencies:    []string{"fetch"},
				Parameters:      map[string]any{"source": "{$.results.fetch.videoUrl}"},
			},
		},
	}
	require.NoError(t, f.metadata.RegisterTemplate(tmpl))

	executionId, err := f.engine.Submit("piped", nil)
	require.NoError(t, err)

	execution := f.waitTerminal(t, executionId)
	require.Equal(t, model.EXECUTION_STATUS_COMPLETED, execution.Status)
	require.Equal(t, "https://example.com/v-1", seen)
}

func TestTemplateHandlersFire(t *testing.T) {
	f := newFixture(t, config.Config{})
	var succeeded, failed int32
	require.NoError(t, f.registry.Register(succeedingAction("work")))
	require.NoError(t, f.registry.Register(action.NewFuncAction("notify-ok", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		atomic.AddInt32(&succeeded, 1)
		return nil, nil
	})))
	require.NoError(t, f.registry.Register(action.NewFuncAction("notify-fail", func(params map[string]any, ctx action.ExecutionContext) (map[string]any, error) {
		atomic.AddInt32(&failed, 1)
		return nil, nil
	})))
	tmpl := chainTemplate("observed", "work", model.AUTOMATION_LEVEL_FULL_AUTO)
	tmpl.OnSuccess = "notify-ok"
	tmpl.OnFailure = "notify-fail"
	require.NoError(t, f.metadata.RegisterTemplate(tmpl))

	executionId, err := f.engine.Submit("observed", nil)
	require.NoError(t, err)
	f.waitTerminal(t, executionId)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&succeeded) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&failed))
}

func TestReRegisteredTemplateUsesNewSteps(t *testing.T) {
	f := newFixture(t, config.Config{})
	require.NoError(t, f.registry.Register(succeedingAction("work")))
	tmpl := model.WorkflowTemplate{
		Name:  "evolving",
		Steps: []model.StepDef{{Id: "old-a", Name: "old-a", Operation: "work", AutomationLevel: model.AUTOMATION_LEVEL_FULL_AUTO}},
	}
	require.NoError(t, f.metadata.RegisterTemplate(tmpl))

	executionId, err := f.engine.Submit("evolving", nil)
	require.NoError(t, err)
	execution := f.waitTerminal(t, executionId)
	require.Equal(t, model.EXECUTION_STATUS_COMPLETED, execution.Status)
	require.Equal(t, []string{"old-a"}, execution.StepsCompleted)

	// re-registration must drop the order resolved for the old definition
	tmpl.Steps = []model.StepDef{
		{Id: "new-a", Name: "new-a", Operation: "work", AutomationLevel: model.AUTOMATION_LEVEL_FULL_AUTO},
		{Id: "new-b", Name: "new-b", Operation: "work", AutomationLevel: model.AUTOMATION_LEVEL_FULL_AUTO, Dependencies: []string{"new-a"}},
	}
	require.NoError(t, f.metadata.RegisterTemplate(tmpl))

	executionId, err = f.engine.Submit("evolving", nil)
	require.NoError(t, err)
	execution = f.waitTerminal(t, executionId)
	require.Equal(t, model.EXECUTION_STATUS_COMPLETED, execution.Status)
	require.Equal(t, []string{"new-a", "new-b"}, execution.StepsCompleted)
	require.Empty(t, execution.StepsFailed)
}
