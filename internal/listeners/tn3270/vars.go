package tn3270

import "time"

// baseVars builds the compiler's standard substitution table (spec
// §4.7 step 1), folding in any caller-supplied extras last so they
// can override a standard name if needed.
func baseVars(sessionID, terminalType string, extra map[string]string) map[string]string {
	now := time.Now()
	vars := map[string]string{
		"timestamp":     now.Format(time.RFC3339),
		"terminal_type": terminalType,
		"user_id":       "",
		"session_id":    sessionID,
		"system_date":   now.Format("2006-01-02"),
		"system_time":   now.Format("15:04:05"),
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}
