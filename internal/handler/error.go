package handler

import "errors"

// UserError is an error type that is used to represent
// an error that should be displayed to the user.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

var _ error = (*UserError)(nil)

var ErrFlowExpired = &UserError{Message: "This menu has expired. Run the command again."}

// userMessage returns the text to show for err, and false for internal errors.
func userMessage(err error) (string, bool) {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Message, true
	}
	return "", false
}
