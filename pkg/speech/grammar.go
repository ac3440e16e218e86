package speech

import (
	"encoding/json"
	"fmt"
)

// ParseGrammar validates a raw grammar payload and returns the phrase
// list.
//
// The decoder takes its grammar as a JSON array of phrase strings:
//
//	["hey facegate", "register my face", "stop"]
//
// Any other top-level shape — in particular the tempting object wrapper
// {"grammar": [...]} — is rejected with ErrInvalidGrammarShape. The
// decoder silently mis-parses wrapped grammars, so the shape is enforced
// here, at construction, where the failure is loud.
func ParseGrammar(raw []byte) ([]string, error) {
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrammarShape, err)
	}

	arr, ok := probe.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidGrammarShape, jsonShape(probe))
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: array is empty", ErrInvalidGrammarShape)
	}

	phrases := make([]string, len(arr))
	for i, v := range arr {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %s", ErrInvalidGrammarShape, i, jsonShape(v))
		}
		phrases[i] = s
	}
	return phrases, nil
}

func jsonShape(v any) string {
	switch v.(type) {
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case float64:
		return "a number"
	case bool:
		return "a boolean"
	case nil:
		return "null"
	default:
		return "an unknown value"
	}
}
