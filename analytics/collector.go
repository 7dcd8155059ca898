package analytics

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Collector receives audit events for step outcomes, decisions and human
// interventions. Implementations must be safe for concurrent use.
type Collector interface {
	RecordStepSuccess(executionId string, template string, stepId string, data map[string]any)
	RecordStepFailure(executionId string, template string, stepId string, reason string)
	RecordDecision(executionId string, stepId string, outcome string, explanation map[string]any)
	RecordIntervention(executionId string, stepId string, reason string, resolution string)
}

type NoopCollector struct{}

func (NoopCollector) RecordStepSuccess(string, string, string, map[string]any) {}
func (NoopCollector) RecordStepFailure(string, string, string, string)         {}
func (NoopCollector) RecordDecision(string, string, string, map[string]any)    {}
func (NoopCollector) RecordIntervention(string, string, string, string)        {}

// LogFileCollector appends audit events as JSON lines to a file.
type LogFileCollector struct {
	fileName string
	logger   *zap.Logger
}

func NewLogFileCollector(fileName string) (*LogFileCollector, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	writer := zapcore.AddSync(logFile)
	core := zapcore.NewTee(zapcore.NewCore(fileEncoder, writer, zapcore.InfoLevel))
	return &LogFileCollector{
		fileName: fileName,
		logger:   zap.New(core),
	}, nil
}

func (lc *LogFileCollector) RecordStepSuccess(executionId string, template string, stepId string, data map[string]any) {
	lc.logger.Info("step_success", zap.String("execution", executionId), zap.String("template", template), zap.String("step", stepId), zap.Any("data", data))
}

func (lc *LogFileCollector) RecordStepFailure(executionId string, template string, stepId string, reason string) {
	lc.logger.Info("step_failure", zap.String("execution", executionId), zap.String("template", template), zap.String("step", stepId), zap.String("reason", reason))
}

func (lc *LogFileCollector) RecordDecision(executionId string, stepId string, outcome string, explanation map[string]any) {
	lc.logger.Info("decision", zap.String("execution", executionId), zap.String("step", stepId), zap.String("outcome", outcome), zap.Any("explanation", explanation))
}

func (lc *LogFileCollector) RecordIntervention(executionId string, stepId string, reason string, resolution string) {
	lc.logger.Info("intervention", zap.String("execution", executionId), zap.String("step", stepId), zap.String("reason", reason), zap.String("resolution", resolution))
}
