package engine

import (
	"fmt"
	"time"

	"github.com/autoflow/autoflow/action"
	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/util"
	"go.uber.org/zap"
)

const DEFAULT_DECISION_POINT string = "step_review"

func (e *ExecutionEngine) runStep(executionId string, tmpl *model.WorkflowTemplate, step model.StepDef) stepOutcome {
	execution, err := e.updateExecution(executionId, func(ex *model.WorkflowExecution) {
		ex.CurrentStepId = step.Id
	})
	if err != nil {
		return stepOutcome{stepId: step.Id, reason: err.Error()}
	}
	data := map[string]any{
		"input":   execution.Input,
		"results": execution.Results,
	}
	params := util.ResolveParams(data, step.Parameters)
	act, err := e.registry.Get(step.Operation)
	if err != nil {
		e.markStepFailed(executionId, step.Id)
		return stepOutcome{stepId: step.Id, reason: err.Error()}
	}
	ctx := action.ExecutionContext{
		ExecutionId:  executionId,
		TemplateName: tmpl.Name,
		StepId:       step.Id,
		Input:        execution.Input,
		Results:      execution.Results,
	}
	timeoutSeconds := step.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = e.conf.DefaultStepTimeoutSeconds
	}
	timeout := time.Duration(timeoutSeconds) * time.Second

	var result map[string]any
	attempts := step.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		ctx.Attempt = attempt
		result, err = e.invoke(act, params, ctx, timeout)
		if err == nil {
			break
		}
		logger.Info("step operation failed",
			zap.String("execution", executionId),
			zap.String("step", step.Id),
			zap.Int("attempt", attempt),
			zap.Int("maxRetries", step.MaxRetries),
			zap.Error(err))
		if attempt < attempts {
			time.Sleep(retryDelay(step, attempt))
		}
	}
	if err != nil {
		// retries exhausted, critical failure
		e.runFailureHandler(step, params, ctx)
		reason := fmt.Sprintf("step %s failed after %d attempts: %v", step.Id, attempts, err)
		e.collector.RecordStepFailure(executionId, tmpl.Name, step.Id, reason)
		e.markStepFailed(executionId, step.Id)
		return stepOutcome{stepId: step.Id, reason: reason}
	}

	ok, reason := evaluateSuccess(step, result)
	if ok {
		e.markStepCompleted(executionId, step.Id, result)
		e.collector.RecordStepSuccess(executionId, tmpl.Name, step.Id, result)
		return stepOutcome{stepId: step.Id, completed: true}
	}

	// policy failure: the operation ran but its outcome does not satisfy the
	// declared criteria
	if step.AutomationLevel == model.AUTOMATION_LEVEL_FULL_AUTO {
		failReason := fmt.Sprintf("step %s success criteria not met: %s", step.Id, reason)
		e.collector.RecordStepFailure(executionId, tmpl.Name, step.Id, failReason)
		e.markStepFailed(executionId, step.Id)
		return stepOutcome{stepId: step.Id, reason: failReason}
	}
	point := step.DecisionPoint
	if len(point) == 0 {
		point = DEFAULT_DECISION_POINT
	}
	res := e.decider.Decide(point, result, step.AutomationLevel)
	e.collector.RecordDecision(executionId, step.Id, res.Outcome, res.Explanation)
	switch res.Outcome {
	case model.OUTCOME_AUTO_APPROVE:
		e.markStepCompleted(executionId, step.Id, result)
		return stepOutcome{stepId: step.Id, completed: true}
	case model.OUTCOME_AUTO_MITIGATE:
		if result == nil {
			result = map[string]any{}
		}
		result["mitigated"] = true
		e.markStepCompleted(executionId, step.Id, result)
		return stepOutcome{stepId: step.Id, completed: true}
	case model.OUTCOME_AUTO_REJECT:
		failReason := fmt.Sprintf("step %s auto rejected: %s", step.Id, reason)
		e.collector.RecordStepFailure(executionId, tmpl.Name, step.Id, failReason)
		e.markStepFailed(executionId, step.Id)
		return stepOutcome{stepId: step.Id, reason: failReason}
	}

	// manual review: block for a bounded time on an operator response
	resolution := e.awaitIntervention(executionId, step.Id, reason)
	e.collector.RecordIntervention(executionId, step.Id, reason, resolution)
	if resolution == model.RESOLUTION_APPROVED {
		e.markStepCompleted(executionId, step.Id, result)
		return stepOutcome{stepId: step.Id, completed: true}
	}
	failReason := fmt.Sprintf("step %s escalated to human review, resolution %s", step.Id, resolution)
	e.markStepFailed(executionId, step.Id)
	return stepOutcome{stepId: step.Id, reason: failReason}
}

// invoke runs the operation with a bounded wait. A timed-out operation keeps
// running in its goroutine but its eventual result is discarded.
func (e *ExecutionEngine) invoke(act action.Action, params map[string]any, ctx action.ExecutionContext, timeout time.Duration) (map[string]any, error) {
	type invokeResult struct {
		data map[string]any
		err  error
	}
	ch := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- invokeResult{err: fmt.Errorf("operation panic: %v", r)}
			}
		}()
		data, err := act.Execute(params, ctx)
		ch <- invokeResult{data: data, err: err}
	}()
	select {
	case res := <-ch:
		return res.data, res.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("operation %s timed out after %s", act.GetName(), timeout)
	}
}

func retryDelay(step model.StepDef, attempt int) time.Duration {
	switch step.RetryPolicy {
	case model.RETRY_POLICY_BACKOFF:
		return time.Duration(step.RetryAfterSeconds*attempt) * time.Second
	default:
		return time.Duration(step.RetryAfterSeconds) * time.Second
	}
}

// runFailureHandler is best-effort: its errors are logged, never propagated,
// so the original step failure stays the reported cause.
func (e *ExecutionEngine) runFailureHandler(step model.StepDef, params map[string]any, ctx action.ExecutionContext) {
	if len(step.OnFailure) == 0 {
		return
	}
	handler, err := e.registry.Get(step.OnFailure)
	if err != nil {
		logger.Error("failure handler not registered", zap.String("handler", step.OnFailure), zap.Error(err))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("failure handler panic", zap.String("handler", step.OnFailure), zap.Any("panic", r))
		}
	}()
	if _, err := handler.Execute(params, ctx); err != nil {
		logger.Error("error in running failure handler", zap.String("handler", step.OnFailure), zap.Error(err))
	}
}

func (e *ExecutionEngine) markStepCompleted(executionId string, stepId string, result map[string]any) {
	_, err := e.updateExecution(executionId, func(ex *model.WorkflowExecution) {
		ex.StepsCompleted = append(ex.StepsCompleted, stepId)
		if ex.Results == nil {
			ex.Results = map[string]map[string]any{}
		}
		ex.Results[stepId] = result
	})
	if err != nil {
		logger.Error("error recording step completion", zap.String("execution", executionId), zap.String("step", stepId), zap.Error(err))
	}
}

func (e *ExecutionEngine) markStepFailed(executionId string, stepId string) {
	_, err := e.updateExecution(executionId, func(ex *model.WorkflowExecution) {
		ex.StepsFailed = append(ex.StepsFailed, stepId)
	})
	if err != nil {
		logger.Error("error recording step failure", zap.String("execution", executionId), zap.String("step", stepId), zap.Error(err))
	}
}

func (e *ExecutionEngine) awaitIntervention(executionId string, stepId string, reason string) string {
	ch := make(chan string, 1)
	key := interventionKey(executionId, stepId)
	e.interventions.Store(key, ch)
	defer e.interventions.Delete(key)
	e.updateExecution(executionId, func(ex *model.WorkflowExecution) {
		ex.Interventions = append(ex.Interventions, model.InterventionRecord{
			StepId:    stepId,
			Reason:    reason,
			Timestamp: time.Now(),
		})
	})
	logger.Warn("step escalated to human review",
		zap.String("execution", executionId),
		zap.String("step", stepId),
		zap.String("reason", reason))
	var resolution string
	select {
	case resolution = <-ch:
	case <-time.After(time.Duration(e.conf.InterventionTimeoutSeconds) * time.Second):
		resolution = model.RESOLUTION_TIMEOUT
	}
	e.updateExecution(executionId, func(ex *model.WorkflowExecution) {
		for i := range ex.Interventions {
			if ex.Interventions[i].StepId == stepId && len(ex.Interventions[i].Resolution) == 0 {
				ex.Interventions[i].Resolution = resolution
			}
		}
	})
	return resolution
}

func evaluateSuccess(step model.StepDef, result map[string]any) (bool, string) {
	if len(step.SuccessCriteria) > 0 {
		for field, criterion := range step.SuccessCriteria {
			value, present := result[field]
			if !present {
				return false, fmt.Sprintf("result field %s missing", field)
			}
			if criterion.Equals != nil {
				if fmt.Sprintf("%v", value) != fmt.Sprintf("%v", criterion.Equals) {
					return false, fmt.Sprintf("field %s is %v, expected %v", field, value, criterion.Equals)
				}
				continue
			}
			num, ok := toFloat(value)
			if !ok {
				return false, fmt.Sprintf("field %s is not numeric", field)
			}
			if criterion.Min != nil && num < *criterion.Min {
				return false, fmt.Sprintf("field %s is %v, below min %v", field, num, *criterion.Min)
			}
			if criterion.Max != nil && num > *criterion.Max {
				return false, fmt.Sprintf("field %s is %v, above max %v", field, num, *criterion.Max)
			}
		}
		return true, ""
	}
	if s, ok := result["success"]; ok {
		if b, ok := s.(bool); ok && !b {
			return false, "operation reported success=false"
		}
	}
	return true, ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
