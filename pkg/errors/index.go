package errors

// IndexError represents failures in segment metadata and codec decoding:
// corrupt headers, version mismatches, inconsistent declared sizes, and
// operations on closed readers.
type IndexError struct {
	*baseError
}

// NewIndexError creates an IndexError wrapping the given cause.
func NewIndexError(err error, code ErrorCode, msg string) *IndexError {
	return &IndexError{baseError: NewBaseError(err, code, msg)}
}

// WithSegment records the segment name involved in the failure.
func (ie *IndexError) WithSegment(name string) *IndexError {
	ie.WithDetail("segment", name)
	return ie
}

// WithField records the field name whose data could not be decoded.
func (ie *IndexError) WithField(field string) *IndexError {
	ie.WithDetail("field", field)
	return ie
}

// WithFileName records the codec file involved.
func (ie *IndexError) WithFileName(name string) *IndexError {
	ie.WithDetail("fileName", name)
	return ie
}

// Segment returns the recorded segment name, or "" if none was set.
func (ie *IndexError) Segment() string {
	if s, ok := ie.details["segment"].(string); ok {
		return s
	}
	return ""
}

// Field returns the recorded field name, or "" if none was set.
func (ie *IndexError) Field() string {
	if f, ok := ie.details["field"].(string); ok {
		return f
	}
	return ""
}
