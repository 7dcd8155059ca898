package metadata

import (
	"fmt"
	"sync"

	"github.com/autoflow/autoflow/model"
)

type UnknownTemplateError struct {
	Name string
}

func (e UnknownTemplateError) Error() string {
	return fmt.Sprintf("workflow template %s is not registered", e.Name)
}

type DuplicateStepIdError struct {
	Template string
	StepId   string
}

func (e DuplicateStepIdError) Error() string {
	return fmt.Sprintf("step id %s is duplicate in template %s", e.StepId, e.Template)
}

type MetadataStorage interface {
	SaveTemplate(t model.WorkflowTemplate) error
	GetTemplate(name string) (*model.WorkflowTemplate, error)
	DeleteTemplate(name string) error
	ListTemplates() ([]string, error)
}

type inMemMetadataStorage struct {
	mu        sync.RWMutex
	templates map[string]model.WorkflowTemplate
}

func NewInMemMetadataStorage() MetadataStorage {
	return &inMemMetadataStorage{
		templates: make(map[string]model.WorkflowTemplate),
	}
}

func (s *inMemMetadataStorage) SaveTemplate(t model.WorkflowTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Name] = t
	return nil
}

func (s *inMemMetadataStorage) GetTemplate(name string) (*model.WorkflowTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return nil, UnknownTemplateError{Name: name}
	}
	return &t, nil
}

func (s *inMemMetadataStorage) DeleteTemplate(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[name]; !ok {
		return UnknownTemplateError{Name: name}
	}
	delete(s.templates, name)
	return nil
}

func (s *inMemMetadataStorage) ListTemplates() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	return names, nil
}
