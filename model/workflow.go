package model

type AutomationLevel string

const AUTOMATION_LEVEL_FULL_AUTO AutomationLevel = "FULL_AUTO"
const AUTOMATION_LEVEL_SEMI_AUTO AutomationLevel = "SEMI_AUTO"
const AUTOMATION_LEVEL_SUPERVISED AutomationLevel = "SUPERVISED"
const AUTOMATION_LEVEL_MANUAL AutomationLevel = "MANUAL"

type RetryPolicy string

const RETRY_POLICY_FIXED RetryPolicy = "FIXED"
const RETRY_POLICY_BACKOFF RetryPolicy = "BACKOFF"

// Criterion matches a single result field, either exactly or within a
// numeric range. Min and Max are inclusive; either may be nil.
type Criterion struct {
	Equals any      `json:"equals,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

// StepDef is one immutable template entry. Dependencies reference step ids
// declared in the same template.
type StepDef struct {
	Id                string               `json:"id"`
	Name              string               `json:"name"`
	Operation         string               `json:"operation"`
	Parameters        map[string]any       `json:"parameters,omitempty"`
	AutomationLevel   AutomationLevel      `json:"automationLevel"`
	Dependencies      []string             `json:"dependencies,omitempty"`
	MaxRetries        int                  `json:"maxRetries"`
	RetryPolicy       RetryPolicy          `json:"retryPolicy,omitempty"`
	RetryAfterSeconds int                  `json:"retryAfterSeconds,omitempty"`
	TimeoutSeconds    int                  `json:"timeoutSeconds,omitempty"`
	SuccessCriteria   map[string]Criterion `json:"successCriteria,omitempty"`
	DecisionPoint     string               `json:"decisionPoint,omitempty"`
	OnFailure         string               `json:"onFailure,omitempty"`
}

type WorkflowTemplate struct {
	Name      string    `json:"name"`
	Steps     []StepDef `json:"steps"`
	OnSuccess string    `json:"onSuccess,omitempty"`
	OnFailure string    `json:"onFailure,omitempty"`
}

type WorkflowRunRequest struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}
