package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidDateRange     ErrorCode = 102
	ErrCodeUnknownField         ErrorCode = 103
	ErrCodeInvalidProvider      ErrorCode = 104

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound ErrorCode = 200
	ErrCodeQueryFailed  ErrorCode = 201

	// Store errors (300-399)
	ErrCodeStoreReadFailed  ErrorCode = 300
	ErrCodeStoreWriteFailed ErrorCode = 301
	ErrCodeColumnMismatch   ErrorCode = 302
	ErrCodeOutOfOrderDate   ErrorCode = 303

	// Vendor session errors (400-499)
	ErrCodeSessionNotOpen     ErrorCode = 400
	ErrCodeSessionOpenFailed  ErrorCode = 401
	ErrCodeSessionCloseFailed ErrorCode = 402
	ErrCodeHistoryFetchFailed ErrorCode = 403
	ErrCodeHistoryParseFailed ErrorCode = 404
)
