package decision

import (
	"fmt"
	"sync"

	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/model"
	"go.uber.org/zap"
)

const DEFAULT_SCORE_FIELD string = "score"

// minimum confidence required before a decision may be automated at all,
// keyed by the step's automation level
var levelMinConfidence = map[model.AutomationLevel]float64{
	model.AUTOMATION_LEVEL_FULL_AUTO:  0.95,
	model.AUTOMATION_LEVEL_SEMI_AUTO:  0.8,
	model.AUTOMATION_LEVEL_SUPERVISED: 0.6,
	model.AUTOMATION_LEVEL_MANUAL:     0,
}

// Rules configures the evaluator for one decision point. Scores at or above
// ApproveAbove auto-approve, at or below RejectBelow auto-reject. The band
// in between yields auto_mitigate when Mitigation is set, manual_review
// otherwise. MinConfidence is an extra floor on top of the automation-level
// table.
type Rules struct {
	ScoreField    string  `json:"scoreField,omitempty"`
	ApproveAbove  float64 `json:"approveAbove"`
	RejectBelow   float64 `json:"rejectBelow"`
	Mitigation    bool    `json:"mitigation,omitempty"`
	MinConfidence float64 `json:"minConfidence,omitempty"`
}

type Engine struct {
	mu            sync.Mutex
	rules         map[string]*Rules
	feedback      []feedbackEntry
	windowSize    int
	accuracyFloor float64
	tightenStep   float64
}

type feedbackEntry struct {
	decisionPoint string
	predicted     string
	actual        string
}

func NewEngine() *Engine {
	return &Engine{
		rules:         make(map[string]*Rules),
		windowSize:    100,
		accuracyFloor: 0.9,
		tightenStep:   0.05,
	}
}

func (e *Engine) RegisterRules(decisionPoint string, r Rules) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.ScoreField == "" {
		r.ScoreField = DEFAULT_SCORE_FIELD
	}
	e.rules[decisionPoint] = &r
}

// GetRules returns a copy of the rules registered for a decision point.
func (e *Engine) GetRules(decisionPoint string) (Rules, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[decisionPoint]
	if !ok {
		return Rules{}, false
	}
	return *r, true
}

// Decide evaluates a decision request. It never returns an error: any
// internal failure degrades to manual_review.
func (e *Engine) Decide(decisionPoint string, data map[string]any, level model.AutomationLevel) (result model.DecisionResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("decision evaluation panic", zap.String("decisionPoint", decisionPoint), zap.Any("panic", r))
			result = manualReview(map[string]any{"reason": fmt.Sprintf("evaluation error: %v", r)})
		}
	}()
	e.mu.Lock()
	defer e.mu.Unlock()
	rules, ok := e.rules[decisionPoint]
	if !ok {
		return manualReview(map[string]any{"reason": "no rules defined", "decisionPoint": decisionPoint})
	}
	confidence := floatField(data, "confidence")
	minConfidence := levelMinConfidence[level]
	if rules.MinConfidence > minConfidence {
		minConfidence = rules.MinConfidence
	}
	if confidence < minConfidence {
		return manualReview(map[string]any{
			"reason":             "insufficient confidence",
			"confidence":         confidence,
			"requiredConfidence": minConfidence,
			"automationLevel":    string(level),
		})
	}
	score := floatField(data, rules.ScoreField)
	explanation := map[string]any{
		"decisionPoint": decisionPoint,
		"scoreField":    rules.ScoreField,
		"score":         score,
		"approveAbove":  rules.ApproveAbove,
		"rejectBelow":   rules.RejectBelow,
		"confidence":    confidence,
	}
	switch {
	case score >= rules.ApproveAbove:
		return model.DecisionResult{Outcome: model.OUTCOME_AUTO_APPROVE, Explanation: explanation}
	case score <= rules.RejectBelow:
		return model.DecisionResult{Outcome: model.OUTCOME_AUTO_REJECT, Explanation: explanation}
	case rules.Mitigation:
		return model.DecisionResult{Outcome: model.OUTCOME_AUTO_MITIGATE, Explanation: explanation}
	default:
		explanation["reason"] = "score between reject and approve thresholds"
		return model.DecisionResult{Outcome: model.OUTCOME_MANUAL_REVIEW, Explanation: explanation}
	}
}

func manualReview(explanation map[string]any) model.DecisionResult {
	return model.DecisionResult{Outcome: model.OUTCOME_MANUAL_REVIEW, Explanation: explanation}
}

func floatField(data map[string]any, field string) float64 {
	if data == nil {
		return 0
	}
	switch v := data[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
