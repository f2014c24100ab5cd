package handler

// Option map accessors. Factories use these to pull typed values out of
// the merged kwargs/options maps; YAML and JSON decoding leave numbers as
// int or float64 depending on the source, so both are accepted.

// GetString extracts a string value with a default fallback
func GetString(options map[string]any, key, defaultValue string) string {
	if value, exists := options[key]; exists {
		if s, ok := value.(string); ok {
			return s
		}
	}
	return defaultValue
}

// GetInt extracts an integer value with a default fallback
func GetInt(options map[string]any, key string, defaultValue int) int {
	if value, exists := options[key]; exists {
		switch v := value.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			if v == float64(int64(v)) {
				return int(v)
			}
		}
	}
	return defaultValue
}

// GetBool extracts a boolean value with a default fallback
func GetBool(options map[string]any, key string, defaultValue bool) bool {
	if value, exists := options[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
	}
	return defaultValue
}

// GetFloat64 extracts a numeric value with a default fallback
func GetFloat64(options map[string]any, key string, defaultValue float64) float64 {
	if value, exists := options[key]; exists {
		switch v := value.(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	}
	return defaultValue
}
