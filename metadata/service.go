package metadata

import (
	"fmt"
	"sync"

	"github.com/autoflow/autoflow/action"
	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/resolver"
	"go.uber.org/zap"
)

// Service owns template registration. Validation is synchronous and fatal:
// a template that fails here is never stored and never retried.
type Service struct {
	storage   MetadataStorage
	registry  *action.Registry
	mu        sync.Mutex
	listeners []func(name string)
}

func NewService(storage MetadataStorage, registry *action.Registry) *Service {
	return &Service{
		storage:  storage,
		registry: registry,
	}
}

// OnTemplateChange registers a callback fired after a template is saved or
// deleted. Callers use it to drop state derived from the previous definition.
func (s *Service) OnTemplateChange(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notifyChange(name string) {
	s.mu.Lock()
	listeners := s.listeners
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(name)
	}
}

func (s *Service) RegisterTemplate(t model.WorkflowTemplate) error {
	if err := s.Validate(t); err != nil {
		return err
	}
	if err := s.storage.SaveTemplate(t); err != nil {
		return err
	}
	s.notifyChange(t.Name)
	logger.Info("workflow template registered", zap.String("template", t.Name), zap.Int("steps", len(t.Steps)))
	return nil
}

func (s *Service) Validate(t model.WorkflowTemplate) error {
	if len(t.Name) == 0 {
		return fmt.Errorf("template name can not be empty")
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("template %s has no steps", t.Name)
	}
	seen := make(map[string]bool, len(t.Steps))
	for _, step := range t.Steps {
		if len(step.Id) == 0 {
			return fmt.Errorf("template %s has a step without id", t.Name)
		}
		if seen[step.Id] {
			return DuplicateStepIdError{Template: t.Name, StepId: step.Id}
		}
		seen[step.Id] = true
		if !s.registry.Has(step.Operation) {
			return fmt.Errorf("step %s uses unknown operation %s", step.Id, step.Operation)
		}
		if step.MaxRetries < 0 {
			return fmt.Errorf("step %s has negative maxRetries", step.Id)
		}
		if len(step.OnFailure) > 0 && !s.registry.Has(step.OnFailure) {
			return fmt.Errorf("step %s uses unknown failure handler %s", step.Id, step.OnFailure)
		}
	}
	for _, handler := range []string{t.OnSuccess, t.OnFailure} {
		if len(handler) > 0 && !s.registry.Has(handler) {
			return fmt.Errorf("template %s uses unknown handler %s", t.Name, handler)
		}
	}
	_, err := resolver.ResolveOrder(t.Name, t.Steps)
	return err
}

func (s *Service) GetTemplate(name string) (*model.WorkflowTemplate, error) {
	return s.storage.GetTemplate(name)
}

func (s *Service) DeleteTemplate(name string) error {
	if err := s.storage.DeleteTemplate(name); err != nil {
		return err
	}
	s.notifyChange(name)
	return nil
}

func (s *Service) ListTemplates() ([]string, error) {
	return s.storage.ListTemplates()
}
