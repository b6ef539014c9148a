package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseCronField normalises the legacy cron field, which arrives either as a single expression,
// as a JSON array of expressions, or as a string holding a JSON array.
func ParseCronField(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanExprs(list)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: cron must be a string or an array of strings", ErrValidation)
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil, fmt.Errorf("%w: cron array: %v", ErrValidation, err)
		}
		return cleanExprs(list)
	}
	return cleanExprs([]string{s})
}

func cleanExprs(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, e := range in {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no cron expressions given", ErrValidation)
	}
	return out, nil
}
