package errors

// ErrorCode represents a standardized way to categorize different types of errors.
type ErrorCode string

// Base error codes cover the fundamental failure categories shared by every
// subsystem.
const (
	// ErrorCodeIO represents failures in input/output operations: opening,
	// reading, mapping, renaming or syncing index files.
	ErrorCodeIO ErrorCode = "IO_ERROR"

	// ErrorCodeInvalidInput represents caller-side errors where provided
	// arguments don't meet the operation's requirements: a range query with
	// lower > upper, a NaN bound, numHits <= 0, a negative seek target.
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrorCodeInternal represents unexpected failures that don't fit any
	// other category. Reaching it usually indicates a bug.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Store-specific codes extend the base taxonomy with the failure modes of the
// directory and segment-file layer.
const (
	// ErrorCodeFileNotFound indicates a segment file or segments_<gen>
	// commit file is missing from the directory.
	ErrorCodeFileNotFound ErrorCode = "FILE_NOT_FOUND"

	// ErrorCodeNotRegularFile indicates the path resolved to something other
	// than a regular file (directory, device, socket).
	ErrorCodeNotRegularFile ErrorCode = "NOT_REGULAR_FILE"

	// ErrorCodeEndOfInput indicates a read past the end of an input's live
	// view. Surfaces from every IndexInput implementation.
	ErrorCodeEndOfInput ErrorCode = "END_OF_INPUT"

	// ErrorCodeCorrupted indicates on-disk data that cannot be decoded:
	// magic mismatch, unsupported version, a VInt with too many
	// continuation bytes, or declared sizes that disagree with the file.
	ErrorCodeCorrupted ErrorCode = "FORMAT_CORRUPTED"

	// ErrorCodeAlreadyClosed indicates an operation on a reader, input or
	// directory whose refcount already reached zero.
	ErrorCodeAlreadyClosed ErrorCode = "ALREADY_CLOSED"

	// ErrorCodeLockUnavailable indicates the exclusive directory write lock
	// could not be acquired. Signalled at the directory boundary only.
	ErrorCodeLockUnavailable ErrorCode = "LOCK_UNAVAILABLE"

	// ErrorCodeUnsupported indicates a capability the platform does not
	// provide, such as memory mapping with fallback disabled.
	ErrorCodeUnsupported ErrorCode = "UNSUPPORTED"

	// ErrorCodeMappingFailed indicates mmap itself failed (address-space
	// exhaustion, resource limits). Distinct from ErrorCodeUnsupported so
	// directories configured with fallback can degrade to buffered I/O.
	ErrorCodeMappingFailed ErrorCode = "MAPPING_FAILED"
)
