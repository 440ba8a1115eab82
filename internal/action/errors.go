package action

import "fmt"

// ParameterError reports that a caller supplied an unknown module, service,
// or task name, or an action input/output that failed schema validation.
// Key is the fully-qualified path of the offending field.
type ParameterError struct {
	Key     string
	Message string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("ParameterError: %s: %s", e.Key, e.Message)
}
