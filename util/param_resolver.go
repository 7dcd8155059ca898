package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenRe = regexp.MustCompile(`\{(.*?)\}`)

// ResolveParams substitutes `{$.path}` tokens in params against the
// execution data map (submission input plus prior step results). A value
// that consists of exactly one token keeps the resolved value's type;
// tokens embedded in a larger string are stringified in place.
func ResolveParams(data map[string]any, params map[string]any) map[string]any {
	output := make(map[string]any)
	resolveParams(data, params, output)
	return output
}

func resolveParams(data map[string]any, params map[string]any, output map[string]any) {
	for k, v := range params {
		switch tv := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			output[k] = out
			resolveParams(data, tv, out)
		case string:
			output[k] = resolveString(data, tv)
		case []any:
			output[k] = resolveList(data, tv)
		default:
			output[k] = v
		}
	}
}

func resolveList(data map[string]any, list []any) []any {
	var output []any
	for _, v := range list {
		switch tv := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			resolveParams(data, tv, out)
			output = append(output, out)
		case string:
			output = append(output, resolveString(data, tv))
		case []any:
			output = append(output, resolveList(data, tv))
		default:
			output = append(output, v)
		}
	}
	return output
}

func resolveString(data map[string]any, s string) any {
	tokens := tokenRe.FindAllString(s, -1)
	if len(tokens) == 0 {
		return s
	}
	if len(tokens) == 1 && tokens[0] == s {
		path := strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
		if strings.HasPrefix(path, "$") {
			value, err := jsonpath.JsonPathLookup(data, path)
			if err != nil {
				return s
			}
			return value
		}
		return s
	}
	newStr := s
	for _, token := range tokens {
		path := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
		if !strings.HasPrefix(path, "$") {
			continue
		}
		value, err := jsonpath.JsonPathLookup(data, path)
		if err != nil {
			continue
		}
		newStr = strings.ReplaceAll(newStr, token, fmt.Sprintf("%v", value))
	}
	return newStr
}
