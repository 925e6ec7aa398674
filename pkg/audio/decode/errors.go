package decode

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Error represents a failure to turn encoded bytes into a signal.
type Error struct {
	Format  Format `json:"format"`
	Path    string `json:"path,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeUnsupported = "UNSUPPORTED_FORMAT"
	ErrCodeDecoding    = "DECODING_FAILED"
	ErrCodeEmpty       = "EMPTY_AUDIO"
	ErrCodeResample    = "RESAMPLE_FAILED"
)

// NewError creates a new decode error.
func NewError(format Format, path, code, message string, cause error) *Error {
	return &Error{
		Format:  format,
		Path:    path,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
