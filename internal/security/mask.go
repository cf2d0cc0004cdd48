// Package security provides masking helpers so credentials embedded in
// configuration, URLs, or log lines never reach log output or leave the
// process inside oracle prompts.
package security

import "regexp"

// MaskAPIKey masks an API key, showing only the first 4 and last 4 characters
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return "***"
	}
	return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
}

// SensitivePatterns contains regex patterns for sensitive data
var SensitivePatterns = []*regexp.Regexp{
	// API keys (various formats)
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)[=:]["']?([a-zA-Z0-9_-]{20,})["']?`),
	// Bearer tokens
	regexp.MustCompile(`(?i)(bearer\s+)([a-zA-Z0-9_.-]{20,})`),
	// Passwords in URLs or config
	regexp.MustCompile(`(?i)(password|passwd|pwd)[=:]["']?([^"'\s&]+)["']?`),
	// Secrets
	regexp.MustCompile(`(?i)(secret|token)[=:]["']?([a-zA-Z0-9_-]{16,})["']?`),
}

// MaskSensitiveData masks sensitive data in a string using pattern matching.
// Log lines pass through here before they are folded into oracle prompts.
func MaskSensitiveData(data string) string {
	result := data

	for _, pattern := range SensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			// Keep the key name, mask the value
			parts := pattern.FindStringSubmatch(match)
			if len(parts) >= 3 {
				return parts[1] + "***REDACTED***"
			}
			return "***REDACTED***"
		})
	}

	return result
}

// MaskURL masks sensitive query parameters in URLs
func MaskURL(rawURL string) string {
	sensitiveParams := []string{
		"api_key", "apikey", "api-key",
		"token", "access_token", "auth_token",
		"password", "passwd", "pwd",
		"secret", "key",
	}

	result := rawURL
	for _, param := range sensitiveParams {
		pattern := regexp.MustCompile(`(?i)(` + regexp.QuoteMeta(param) + `=)([^&\s]+)`)
		result = pattern.ReplaceAllString(result, "${1}***REDACTED***")
	}

	return result
}

// SanitizeError removes sensitive data from error messages
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return MaskSensitiveData(err.Error())
}
