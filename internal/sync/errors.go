package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means there is no signed-in identity; the session cannot start.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrSessionClosed is returned by every operation after Logout.
	ErrSessionClosed = errors.New("session closed")
	// ErrInvalidChat rejects a chat without a name.
	ErrInvalidChat = errors.New("chat name is required")
)

// UploadError aborts a send whose attachment could not be stored. No
// message row is written when it is returned.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
