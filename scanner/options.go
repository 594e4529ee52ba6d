package scanner

import "fmt"

// limitOption is the per-rule option every built-in scanner recognizes:
// the maximum number of child files it will extract. Absent or <= 0
// means unlimited.
const limitOption = "limit"

// parseLimit validates and extracts the configured limit, if any. YAML
// numeric scalars decode to int through yaml.v3; float64/int64 are
// accepted too since options flow through as map[string]any.
func parseLimit(options map[string]any) (int, error) {
	raw, ok := options[limitOption]
	if !ok {
		return 0, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("option %q: want integer, got %T", limitOption, raw)
	}
}
