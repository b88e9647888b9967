package exam

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Answers maps question numbers to answers. In JSON the keys are question
// numbers as strings; values may be strings, numbers or lists of option
// letters, which are comma-joined.
type Answers map[int]string

func (a *Answers) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("answers must be an object: %w", err)
	}
	if raw == nil {
		*a = nil
		return nil
	}

	out := make(Answers, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || n < 1 {
			return fmt.Errorf("answer key %q is not a question number", k)
		}
		s, err := answerValue(v)
		if err != nil {
			return fmt.Errorf("answer %d: %w", n, err)
		}
		out[n] = s
	}
	*a = out
	return nil
}

func answerValue(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return strings.Join(list, ","), nil
	}
	var num json.Number
	if err := json.Unmarshal(v, &num); err == nil {
		return num.String(), nil
	}
	if string(v) == "null" {
		return "", nil
	}
	return "", fmt.Errorf("unsupported value %s", v)
}
