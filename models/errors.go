package models

import "fmt"

// ConfigError reports a Settings field outside its valid domain. It is
// returned at construction time; values are never clamped.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid setting %s: %s", e.Field, e.Reason)
}

// InputError reports a sample (or delta time) the engine refuses to
// process. The rejected call leaves all engine state untouched.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Reason)
}
