package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Unknown email and wrong
	// password are reported the same way.
	ErrInvalidCredentials = NewDomainError("invalid credentials", "Invalid email or password! Please try again.")
	// ErrNotAuthenticated indicates the request carries no logged-in user.
	ErrNotAuthenticated = NewDomainError("not authenticated", "Please login to continue.")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeError is implemented by errors whose text may be shown to end users.
type UserSafeError interface {
	error
	UserMessage() string
}

// GenericFailureMessage is shown when an error carries no user safe text.
const GenericFailureMessage = "Something went wrong. Please try again."

// UserSafeMessage returns text suitable for a flash message.
func UserSafeMessage(err error) string {
	var safe UserSafeError
	if errors.As(err, &safe) {
		return safe.UserMessage()
	}
	return GenericFailureMessage
}

// DomainError is a sentinel business error carrying its user facing text.
type DomainError struct {
	code    string
	message string
}

// NewDomainError builds a DomainError. Compare instances with errors.Is.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{code: code, message: message}
}

func (e *DomainError) Error() string { return e.code }

// UserMessage returns the notification text for the error.
func (e *DomainError) UserMessage() string { return e.message }
