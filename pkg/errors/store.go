package errors

// StoreError represents failures in the directory and file-access layer:
// missing files, reads past end of input, mapping failures, lock contention.
type StoreError struct {
	*baseError
}

// NewStoreError creates a StoreError wrapping the given cause.
func NewStoreError(err error, code ErrorCode, msg string) *StoreError {
	return &StoreError{baseError: NewBaseError(err, code, msg)}
}

// WithPath records the filesystem path involved in the failure.
func (se *StoreError) WithPath(path string) *StoreError {
	se.WithDetail("path", path)
	return se
}

// WithFileName records the directory-relative file name involved.
func (se *StoreError) WithFileName(name string) *StoreError {
	se.WithDetail("fileName", name)
	return se
}

// WithOffset records the byte offset at which the failure occurred.
func (se *StoreError) WithOffset(offset int64) *StoreError {
	se.WithDetail("offset", offset)
	return se
}

// WithLength records the live view length of the input involved.
func (se *StoreError) WithLength(length int64) *StoreError {
	se.WithDetail("length", length)
	return se
}

// Path returns the recorded path, or "" if none was set.
func (se *StoreError) Path() string {
	if p, ok := se.details["path"].(string); ok {
		return p
	}
	return ""
}

// FileName returns the recorded file name, or "" if none was set.
func (se *StoreError) FileName() string {
	if n, ok := se.details["fileName"].(string); ok {
		return n
	}
	return ""
}
