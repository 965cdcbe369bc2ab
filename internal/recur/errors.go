package recur

import "fmt"

// MalformedRuleError reports a rule field that could not be interpreted.
type MalformedRuleError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedRuleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("recur: malformed %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("recur: malformed %s %q", e.Field, e.Value)
}

func (e *MalformedRuleError) Unwrap() error {
	return e.Err
}

// UnsupportedFrequencyError is returned by Build for any FREQ other than
// YEARLY, MONTHLY, WEEKLY or DAILY.
type UnsupportedFrequencyError struct {
	Frequency Frequency
}

func (e *UnsupportedFrequencyError) Error() string {
	return fmt.Sprintf("recur: unsupported frequency %q", string(e.Frequency))
}
