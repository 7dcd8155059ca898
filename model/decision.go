package model

const OUTCOME_AUTO_APPROVE string = "auto_approve"
const OUTCOME_AUTO_REJECT string = "auto_reject"
const OUTCOME_AUTO_MITIGATE string = "auto_mitigate"
const OUTCOME_MANUAL_REVIEW string = "manual_review"

type DecisionRequest struct {
	DecisionPoint   string          `json:"decisionPoint"`
	Data            map[string]any  `json:"data"`
	AutomationLevel AutomationLevel `json:"automationLevel"`
}

// DecisionResult carries the outcome tag plus the thresholds that were
// compared, so callers can audit why a decision came out the way it did.
type DecisionResult struct {
	Outcome     string         `json:"outcome"`
	Explanation map[string]any `json:"explanation"`
}
