package model

import "time"

type ExecutionStatus string

const EXECUTION_STATUS_PENDING ExecutionStatus = "PENDING"
const EXECUTION_STATUS_RUNNING ExecutionStatus = "RUNNING"
const EXECUTION_STATUS_COMPLETED ExecutionStatus = "COMPLETED"
const EXECUTION_STATUS_FAILED ExecutionStatus = "FAILED"
const EXECUTION_STATUS_CANCELLED ExecutionStatus = "CANCELLED"
const EXECUTION_STATUS_PAUSED ExecutionStatus = "PAUSED"

func (s ExecutionStatus) IsTerminal() bool {
	return s == EXECUTION_STATUS_COMPLETED || s == EXECUTION_STATUS_FAILED || s == EXECUTION_STATUS_CANCELLED
}

const RESOLUTION_APPROVED string = "approved"
const RESOLUTION_REJECTED string = "rejected"
const RESOLUTION_TIMEOUT string = "timeout"

// InterventionRecord is appended whenever a step cannot be auto-resolved.
// Resolution stays empty until an operator responds or the wait times out.
type InterventionRecord struct {
	StepId     string    `json:"stepId"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
	Resolution string    `json:"resolution,omitempty"`
}

type WorkflowExecution struct {
	Id             string                    `json:"id"`
	TemplateName   string                    `json:"templateName"`
	Status         ExecutionStatus           `json:"status"`
	Input          map[string]any            `json:"input,omitempty"`
	StartedAt      time.Time                 `json:"startedAt"`
	CompletedAt    *time.Time                `json:"completedAt,omitempty"`
	CurrentStepId  string                    `json:"currentStepId,omitempty"`
	StepsCompleted []string                  `json:"stepsCompleted"`
	StepsFailed    []string                  `json:"stepsFailed"`
	Results        map[string]map[string]any `json:"results"`
	Interventions  []InterventionRecord      `json:"interventions"`
	AutomationRate float64                   `json:"automationRate"`
	Error          string                    `json:"error,omitempty"`
}

// Clone returns a deep copy so that stored executions stay immutable once a
// caller holds a reference.
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	c := *e
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		c.CompletedAt = &t
	}
	c.Input = cloneMap(e.Input)
	c.StepsCompleted = append([]string(nil), e.StepsCompleted...)
	c.StepsFailed = append([]string(nil), e.StepsFailed...)
	c.Interventions = append([]InterventionRecord(nil), e.Interventions...)
	if e.Results != nil {
		c.Results = make(map[string]map[string]any, len(e.Results))
		for k, v := range e.Results {
			c.Results[k] = cloneMap(v)
		}
	}
	return &c
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if m, ok := v.(map[string]any); ok {
			out[k] = cloneMap(m)
		} else {
			out[k] = v
		}
	}
	return out
}
