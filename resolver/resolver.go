package resolver

import (
	"fmt"

	"github.com/autoflow/autoflow/model"
)

type CycleDetectedError struct {
	Template string
}

func (e CycleDetectedError) Error() string {
	return fmt.Sprintf("dependency cycle detected in template %s", e.Template)
}

type UnknownDependencyError struct {
	StepId     string
	Dependency string
}

func (e UnknownDependencyError) Error() string {
	return fmt.Sprintf("step %s depends on unknown step %s", e.StepId, e.Dependency)
}

// ResolveOrder returns the step ids of a template ordered so that every step
// appears after all of its dependencies. Ties among simultaneously ready
// steps are broken by template declaration order, so the result is
// deterministic for a given template.
func ResolveOrder(templateName string, steps []model.StepDef) ([]string, error) {
	index := make(map[string]int, len(steps))
	for i, step := range steps {
		index[step.Id] = i
	}
	inDegree := make([]int, len(steps))
	dependents := make(map[string][]int)
	for i, step := range steps {
		for _, dep := range step.Dependencies {
			if _, ok := index[dep]; !ok {
				return nil, UnknownDependencyError{StepId: step.Id, Dependency: dep}
			}
			inDegree[i]++
			dependents[dep] = append(dependents[dep], i)
		}
	}
	order := make([]string, 0, len(steps))
	emitted := make([]bool, len(steps))
	for len(order) < len(steps) {
		next := -1
		for i := range steps {
			if !emitted[i] && inDegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			// residual nonzero in-degrees, the remaining steps form a cycle
			return nil, CycleDetectedError{Template: templateName}
		}
		emitted[next] = true
		order = append(order, steps[next].Id)
		for _, d := range dependents[steps[next].Id] {
			inDegree[d]--
		}
	}
	return order, nil
}
