package core

import (
	"encoding/json"
	"strings"
)

// transientKeywords mark errors worth retrying. Matching is case-insensitive
// substring over the recorded error message; anything else is permanent.
var transientKeywords = []string{
	"timeout",
	"connection",
	"network",
	"offline",
	"unavailable",
	"busy",
}

// IsTransientError classifies a recorded dispatch error message.
func IsTransientError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, keyword := range transientKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func encodeTemplateData(data map[string]any) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
