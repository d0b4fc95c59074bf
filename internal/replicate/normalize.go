package replicate

// Terminal reports whether a job status will never change again.
func Terminal(status string) bool {
	switch status {
	case "succeeded", "completed", "failed", "canceled":
		return true
	}
	return false
}

// Succeeded tolerates both spellings seen from the upstream API.
func Succeeded(status string) bool {
	return status == "succeeded" || status == "completed"
}

// FirstOutputURL normalizes the upstream output field to a single URL.
// The shape is not guaranteed consistent across polls: it can be a plain
// string, an array of strings, or a map carrying "output" or a legacy "urls"
// array. Returns ("", false) when no usable URL is present.
func FirstOutputURL(output interface{}) (string, bool) {
	switch v := output.(type) {
	case string:
		if v != "" {
			return v, true
		}
	case []string:
		for _, s := range v {
			if s != "" {
				return s, true
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				return s, true
			}
		}
	case map[string]interface{}:
		if url, ok := FirstOutputURL(v["output"]); ok {
			return url, true
		}
		if url, ok := FirstOutputURL(v["urls"]); ok {
			return url, true
		}
	}
	return "", false
}
