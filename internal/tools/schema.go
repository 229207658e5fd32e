package tools

// SanitizeSchema returns a copy of a JSON Schema with null-valued attributes
// removed. Tool schemas are built with optional constraint fields (minLength,
// maximum, default, ...) that are nil when unset; some model APIs reject
// properties carrying explicit nulls, so they are stripped before the schema
// is sent. Sanitizing an already-sanitized schema is a no-op.
func SanitizeSchema(schema map[string]any) map[string]any {
	out, _ := sanitizeValue(schema).(map[string]any)
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if inner == nil {
				continue
			}
			out[k] = sanitizeValue(inner)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, inner := range val {
			if inner == nil {
				continue
			}
			out = append(out, sanitizeValue(inner))
		}
		return out
	default:
		return v
	}
}
