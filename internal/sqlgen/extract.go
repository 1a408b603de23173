package sqlgen

import "strings"

// ExtractSQL pulls the statement out of model output using three
// strategies in order:
//  1. a ```sql fenced block
//  2. any fenced block whose content starts with SELECT or WITH
//  3. the raw reply, if it itself starts with SELECT or WITH
//
// Returns "" when no statement can be found.
func ExtractSQL(text string) string {
	lower := strings.ToLower(text)
	if idx := strings.Index(lower, "```sql"); idx != -1 {
		body := text[idx+len("```sql"):]
		if len(body) > 0 && body[0] == '\n' {
			body = body[1:]
		}
		if end := strings.Index(body, "```"); end != -1 {
			if sql := strings.TrimSpace(body[:end]); sql != "" {
				return sql
			}
		}
	}

	parts := strings.Split(text, "```")
	for i := 1; i < len(parts); i += 2 {
		candidate := strings.TrimSpace(parts[i])
		// Strip a language tag line if present.
		if nl := strings.Index(candidate, "\n"); nl != -1 {
			first := strings.ToUpper(strings.TrimSpace(candidate[:nl]))
			if !strings.HasPrefix(first, "SELECT") && !strings.HasPrefix(first, "WITH") {
				candidate = strings.TrimSpace(candidate[nl:])
			}
		}
		up := strings.ToUpper(candidate)
		if strings.HasPrefix(up, "SELECT") || strings.HasPrefix(up, "WITH") {
			return candidate
		}
	}

	trimmed := strings.TrimSpace(text)
	up := strings.ToUpper(trimmed)
	if strings.HasPrefix(up, "SELECT") || strings.HasPrefix(up, "WITH") {
		return trimmed
	}
	return ""
}
