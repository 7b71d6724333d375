package proto

import "fmt"

var (
	ErrInvalidMessage  = fmt.Errorf("invalid message")
	ErrBodyTooLong     = fmt.Errorf("body too long")
	ErrMessageNotFound = fmt.Errorf("message not found")
	ErrAccessDenied    = fmt.Errorf("access denied")
)
