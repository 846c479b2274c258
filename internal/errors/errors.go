package errors

import "fmt"

// Codes identifying the failure classes of a release run.
const (
	CodeNoVersionFile        = "NO_VERSION_FILE"
	CodeVersionFieldNotFound = "VERSION_FIELD_NOT_FOUND"
	CodeInvalidManifest      = "INVALID_MANIFEST"
	CodeBranchNotFound       = "BRANCH_NOT_FOUND"
	CodeRemoteAPI            = "REMOTE_API"
	CodeConfiguration        = "CONFIGURATION"
	CodePanic                = "PANIC"
)

// Sentinels usable with errors.Is. Matching is done on Code only.
var (
	ErrNoVersionFile        = New(CodeNoVersionFile, "no version file found")
	ErrVersionFieldNotFound = New(CodeVersionFieldNotFound, "version field not found")
	ErrInvalidManifest      = New(CodeInvalidManifest, "invalid manifest")
	ErrBranchNotFound       = New(CodeBranchNotFound, "branch not found")
	ErrRemoteAPI            = New(CodeRemoteAPI, "remote API error")
	ErrConfiguration        = New(CodeConfiguration, "configuration error")
)

type ReleaseError struct {
	Code    string
	Message string
	Err     error
}

func (e *ReleaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *ReleaseError carrying the same code.
func (e *ReleaseError) Is(target error) bool {
	t, ok := target.(*ReleaseError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string) *ReleaseError {
	return &ReleaseError{Code: code, Message: message}
}

func Wrap(err error, code, message string) *ReleaseError {
	return &ReleaseError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost *ReleaseError in err's chain, or
// the empty string when there is none.
func CodeOf(err error) string {
	for err != nil {
		if re, ok := err.(*ReleaseError); ok {
			return re.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
