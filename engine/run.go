package engine

import (
	"time"

	"github.com/autoflow/autoflow/action"
	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/util"
	"go.uber.org/zap"
)

type stepOutcome struct {
	stepId    string
	completed bool
	reason    string
}

func (e *ExecutionEngine) handleTask(task util.Task) error {
	t := task.(executionTask)
	e.runExecution(t.ExecutionId, t.TemplateName)
	return nil
}

// runExecution dispatches the steps of one execution in dependency order.
// Independent branches run concurrently up to the per-execution cap; a step
// is ready only once every dependency has completed.
func (e *ExecutionEngine) runExecution(executionId string, templateName string) {
	tmpl, err := e.metadataService.GetTemplate(templateName)
	if err != nil {
		logger.Error("template vanished after submission", zap.String("template", templateName), zap.Error(err))
		e.finalize(executionId, nil, true, "template not found")
		return
	}
	order, err := e.resolveOrder(tmpl)
	if err != nil {
		e.finalize(executionId, tmpl, true, err.Error())
		return
	}
	ctrl, err := e.controlFor(executionId)
	if err != nil {
		logger.Error("no control for execution", zap.String("execution", executionId), zap.Error(err))
		return
	}
	if _, err := e.updateExecution(executionId, func(ex *model.WorkflowExecution) {
		ex.Status = model.EXECUTION_STATUS_RUNNING
	}); err != nil {
		logger.Error("error marking execution running", zap.String("execution", executionId), zap.Error(err))
		return
	}
	logger.Info("execution running", zap.String("template", templateName), zap.String("execution", executionId))

	stepsById := make(map[string]model.StepDef, len(tmpl.Steps))
	inDegree := make(map[string]int, len(tmpl.Steps))
	dependents := make(map[string][]string)
	for _, step := range tmpl.Steps {
		stepsById[step.Id] = step
		inDegree[step.Id] = len(step.Dependencies)
		for _, dep := range step.Dependencies {
			dependents[dep] = append(dependents[dep], step.Id)
		}
	}

	dispatched := make(map[string]bool, len(order))
	outcomes := make(chan stepOutcome)
	running := 0
	halt := false
	failed := false
	failReason := ""

	for {
		if ctrl.isCancelled() {
			halt = true
		}
		if !halt {
			if ctrl.isPaused() {
				if running == 0 {
					e.waitResume(executionId, ctrl)
					continue
				}
			} else {
				for _, stepId := range order {
					if running >= e.conf.StepConcurrency {
						break
					}
					if dispatched[stepId] || inDegree[stepId] > 0 {
						continue
					}
					dispatched[stepId] = true
					running++
					go func(step model.StepDef) {
						outcomes <- e.runStep(executionId, tmpl, step)
					}(stepsById[stepId])
				}
			}
		}
		if running == 0 {
			break
		}
		oc := <-outcomes
		running--
		if oc.completed {
			for _, d := range dependents[oc.stepId] {
				inDegree[d]--
			}
		} else {
			halt = true
			failed = true
			failReason = oc.reason
		}
	}

	if ctrl.isCancelled() {
		e.finalize(executionId, tmpl, true, "")
		return
	}
	e.finalize(executionId, tmpl, failed, failReason)
}

func (e *ExecutionEngine) waitResume(executionId string, ctrl *executionControl) {
	e.updateExecution(executionId, func(ex *model.WorkflowExecution) {
		ex.Status = model.EXECUTION_STATUS_PAUSED
	})
	logger.Info("execution paused", zap.String("execution", executionId))
	select {
	case <-ctrl.resume:
	case <-ctrl.cancelled:
		return
	}
	e.updateExecution(executionId, func(ex *model.WorkflowExecution) {
		ex.Status = model.EXECUTION_STATUS_RUNNING
	})
	logger.Info("execution resumed", zap.String("execution", executionId))
}

// finalize moves the execution to its terminal state, computes the
// automation rate over the steps that actually ran and fires the template's
// terminal handler best-effort.
func (e *ExecutionEngine) finalize(executionId string, tmpl *model.WorkflowTemplate, failedOrCancelled bool, failReason string) {
	cancelled := false
	if ctrl, err := e.controlFor(executionId); err == nil {
		cancelled = ctrl.isCancelled()
	}
	execution, err := e.updateExecution(executionId, func(ex *model.WorkflowExecution) {
		ex.CurrentStepId = ""
		now := time.Now()
		ex.CompletedAt = &now
		switch {
		case cancelled:
			ex.Status = model.EXECUTION_STATUS_CANCELLED
		case failedOrCancelled:
			ex.Status = model.EXECUTION_STATUS_FAILED
			ex.Error = failReason
		default:
			ex.Status = model.EXECUTION_STATUS_COMPLETED
		}
		run := len(ex.StepsCompleted) + len(ex.StepsFailed)
		if run > 0 {
			rate := float64(run-len(ex.Interventions)) / float64(run)
			if rate < 0 {
				rate = 0
			}
			ex.AutomationRate = rate
		}
	})
	e.controls.Delete(executionId)
	e.locks.Delete(executionId)
	if err != nil {
		logger.Error("error finalizing execution", zap.String("execution", executionId), zap.Error(err))
		return
	}
	logger.Info("execution finished",
		zap.String("execution", executionId),
		zap.String("status", string(execution.Status)),
		zap.Float64("automationRate", execution.AutomationRate))
	if tmpl == nil {
		return
	}
	switch execution.Status {
	case model.EXECUTION_STATUS_COMPLETED:
		e.runHandler(tmpl.OnSuccess, execution)
	case model.EXECUTION_STATUS_FAILED:
		e.runHandler(tmpl.OnFailure, execution)
	}
}

// runHandler invokes a terminal state handler. Handler errors are logged and
// swallowed; they must never mask the execution outcome.
func (e *ExecutionEngine) runHandler(name string, execution *model.WorkflowExecution) {
	if len(name) == 0 {
		return
	}
	act, err := e.registry.Get(name)
	if err != nil {
		logger.Error("state handler not registered", zap.String("handler", name), zap.Error(err))
		return
	}
	_, err = act.Execute(map[string]any{}, action.ExecutionContext{
		ExecutionId:  execution.Id,
		TemplateName: execution.TemplateName,
		Input:        execution.Input,
		Results:      execution.Results,
	})
	if err != nil {
		logger.Error("error in running state handler", zap.String("handler", name), zap.Error(err))
	}
}
