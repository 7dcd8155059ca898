package action

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

const SCRIPT_ACTION_NAME string = "script"

var _ Action = new(scriptAction)

// scriptAction evaluates the javascript expression carried in the step's
// `expression` parameter. The script sees `$` bound to {input, params,
// results}; whatever it leaves in `$` becomes the step result.
type scriptAction struct{}

func NewScriptAction() *scriptAction {
	return &scriptAction{}
}

func (a *scriptAction) GetName() string {
	return SCRIPT_ACTION_NAME
}

func (a *scriptAction) Execute(params map[string]any, ctx ExecutionContext) (map[string]any, error) {
	expression, ok := params["expression"].(string)
	if !ok || len(expression) == 0 {
		return nil, fmt.Errorf("script step %s requires a non empty expression parameter", ctx.StepId)
	}
	scope := map[string]any{
		"input":   ctx.Input,
		"params":  params,
		"results": ctx.Results,
	}
	data, err := json.Marshal(scope)
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf("var $ = %s;\n%s", data, expression)
	vm := goja.New()
	_, err = vm.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("error executing javascript %w", err)
	}
	val, err := vm.RunString("$")
	if err != nil {
		return nil, fmt.Errorf("error executing javascript %w", err)
	}
	res, err := json.Marshal(val.Export())
	if err != nil {
		return nil, err
	}
	var output map[string]any
	if err := json.Unmarshal(res, &output); err != nil {
		return nil, fmt.Errorf("script step %s left $ as a non object value", ctx.StepId)
	}
	return output, nil
}
