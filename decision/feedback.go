package decision

import (
	"github.com/autoflow/autoflow/logger"
	"go.uber.org/zap"
)

const maxThreshold float64 = 0.99
const minThreshold float64 = 0.01

// RecordFeedback appends one (decisionPoint, predicted, actual) observation.
// Every windowSize observations the per-point accuracy over the most recent
// window is recomputed; points below the accuracy floor get their thresholds
// tightened so borderline cases fall back to manual review. Thresholds only
// ever tighten here; loosening requires RegisterRules.
func (e *Engine) RecordFeedback(decisionPoint string, predicted string, actual string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feedback = append(e.feedback, feedbackEntry{
		decisionPoint: decisionPoint,
		predicted:     predicted,
		actual:        actual,
	})
	if len(e.feedback) >= e.windowSize {
		e.recalibrate()
		// the window is consumed; holding more than one window buys nothing
		e.feedback = e.feedback[:0]
	}
}

func (e *Engine) recalibrate() {
	window := e.feedback[len(e.feedback)-e.windowSize:]
	total := make(map[string]int)
	correct := make(map[string]int)
	for _, entry := range window {
		total[entry.decisionPoint]++
		if entry.predicted == entry.actual {
			correct[entry.decisionPoint]++
		}
	}
	for point, n := range total {
		accuracy := float64(correct[point]) / float64(n)
		if accuracy >= e.accuracyFloor {
			continue
		}
		rules, ok := e.rules[point]
		if !ok {
			continue
		}
		e.tighten(rules)
		logger.Warn("decision accuracy below floor, thresholds tightened",
			zap.String("decisionPoint", point),
			zap.Float64("accuracy", accuracy),
			zap.Float64("approveAbove", rules.ApproveAbove),
			zap.Float64("rejectBelow", rules.RejectBelow),
			zap.Float64("minConfidence", rules.MinConfidence))
	}
}

func (e *Engine) tighten(rules *Rules) {
	if rules.ApproveAbove+e.tightenStep <= maxThreshold {
		rules.ApproveAbove += e.tightenStep
	} else {
		rules.ApproveAbove = maxThreshold
	}
	if rules.RejectBelow-e.tightenStep >= minThreshold {
		rules.RejectBelow -= e.tightenStep
	} else {
		rules.RejectBelow = minThreshold
	}
	if rules.MinConfidence+e.tightenStep <= maxThreshold {
		rules.MinConfidence += e.tightenStep
	} else {
		rules.MinConfidence = maxThreshold
	}
}
