package action

import (
	"fmt"
	"sync"
)

// ExecutionContext is handed to every operation invocation. Results holds
// the payloads of steps that already completed in the owning execution.
type ExecutionContext struct {
	ExecutionId  string
	TemplateName string
	StepId       string
	Attempt      int
	Input        map[string]any
	Results      map[string]map[string]any
}

// Action is a pluggable unit of work. The returned map may carry a boolean
// `success` flag or fields matched against the step's success criteria; an
// error return means the invocation itself failed and is subject to the
// step's retry policy.
type Action interface {
	GetName() string
	Execute(params map[string]any, ctx ExecutionContext) (map[string]any, error)
}

type funcAction struct {
	name string
	fn   func(params map[string]any, ctx ExecutionContext) (map[string]any, error)
}

func (a *funcAction) GetName() string {
	return a.name
}

func (a *funcAction) Execute(params map[string]any, ctx ExecutionContext) (map[string]any, error) {
	return a.fn(params, ctx)
}

// NewFuncAction wraps a plain function as an Action.
func NewFuncAction(name string, fn func(params map[string]any, ctx ExecutionContext) (map[string]any, error)) Action {
	return &funcAction{name: name, fn: fn}
}

type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

func NewRegistry() *Registry {
	r := &Registry{
		actions: make(map[string]Action),
	}
	r.actions[SCRIPT_ACTION_NAME] = NewScriptAction()
	return r
}

func (r *Registry) Register(act Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[act.GetName()]; ok {
		return fmt.Errorf("action %s already registered", act.GetName())
	}
	r.actions[act.GetName()] = act
	return nil
}

func (r *Registry) Get(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	act, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("action %s not registered", name)
	}
	return act, nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}
