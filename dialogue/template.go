package dialogue

import "strings"

// Render substitutes {{ name }} placeholders in a prompt template. Names may
// be plain variable names or dotted header-style lookups ("caller.number",
// "sip.headers.x-ticket"); both resolve against the session's flat variable
// map, which stores dotted keys. Unknown placeholders are left in place so a
// template problem is visible instead of silently blanked.
func Render(template string, vars map[string]string) string {
	var b strings.Builder
	rest := template
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		closing := strings.Index(rest[open:], "}}")
		if closing < 0 {
			b.WriteString(rest)
			return b.String()
		}
		closing += open

		b.WriteString(rest[:open])
		name := strings.TrimSpace(rest[open+2 : closing])
		if value, ok := vars[name]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(rest[open : closing+2])
		}
		rest = rest[closing+2:]
	}
}
