package logger

import "strings"

// SanitizedEmail masks an email address for logging (e.g., "j***@e***.com").
func SanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	username := parts[0]
	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	domainParts := strings.Split(parts[1], ".")
	for i := 0; i < len(domainParts)-1; i++ {
		domainParts[i] = strings.Repeat("*", len(domainParts[i]))
	}

	return username + "@" + strings.Join(domainParts, ".")
}

// SanitizeQueryString reports whether a query string carries sensitive
// parameters and must be redacted from request logs. Confirmation and reset
// codes travel in GET query params, so "code" matters here.
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{"password", "token", "secret", "code", "email"}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
