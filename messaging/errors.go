package messaging

import (
	"errors"
	"fmt"
)

// ErrEmptyMessage is returned for a nil delivery. It means the broker dropped
// the consumer, usually because the queue or the virtual host was deleted,
// not that the application sent something wrong.
var ErrEmptyMessage = errors.New("messaging: received an empty message, connection lost or vhost deleted")

// UnexpectedActionTypeError is returned when the action header is present
// but is not a string
type UnexpectedActionTypeError struct {
	Value interface{}
}

func (e *UnexpectedActionTypeError) Error() string {
	return fmt.Sprintf("messaging: action header must be a string, got %T", e.Value)
}
