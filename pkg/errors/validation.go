package errors

// ValidationError represents caller-side argument failures: a range query
// constructed with lower > upper, NaN bounds, non-positive hit counts, or a
// negative seek target.
type ValidationError struct {
	*baseError
}

// NewValidationError creates a ValidationError wrapping the given cause.
func NewValidationError(err error, code ErrorCode, msg string) *ValidationError {
	return &ValidationError{baseError: NewBaseError(err, code, msg)}
}

// WithField records which argument failed validation.
func (ve *ValidationError) WithField(field string) *ValidationError {
	ve.WithDetail("field", field)
	return ve
}

// WithRule records the violated constraint, e.g. "lower <= upper".
func (ve *ValidationError) WithRule(rule string) *ValidationError {
	ve.WithDetail("rule", rule)
	return ve
}

// WithProvided records the offending value.
func (ve *ValidationError) WithProvided(value any) *ValidationError {
	ve.WithDetail("provided", value)
	return ve
}

// Field returns the recorded argument name, or "" if none was set.
func (ve *ValidationError) Field() string {
	if f, ok := ve.details["field"].(string); ok {
		return f
	}
	return ""
}

// Rule returns the recorded constraint, or "" if none was set.
func (ve *ValidationError) Rule() string {
	if r, ok := ve.details["rule"].(string); ok {
		return r
	}
	return ""
}
