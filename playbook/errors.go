package playbook

import "fmt"

// ConfigError reports a malformed playbook. It is only ever produced at load
// time; a playbook that loaded cleanly cannot raise it during a call.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "playbook: " + e.Reason
	}
	return fmt.Sprintf("playbook: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
