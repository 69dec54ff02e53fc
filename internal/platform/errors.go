package platform

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by every layer.
//
// Propagation policy:
//
//	ErrRequestTimeout, ErrInvalidResponseFormat  catalog refresh: returned to the caller (command or pipeline step)
//	ErrNoCharacterAvailable                      resolve: returned to the caller, pipeline logs and skips voice
//	ErrNotFound                                  identifier lookup: user-visible "not found" reply
//	ErrNotAGroupContext                          commands: fixed "group-chat only" reply
//	*SendError (ErrPlatformSend)                 voice dispatch: contained in the dispatcher;
//	                                             text/ack sends: contained and logged at the call site
var (
	ErrNotAGroupContext      = errors.New("not a group context")
	ErrRequestTimeout        = errors.New("request timed out")
	ErrInvalidResponseFormat = errors.New("invalid response format")
	ErrNoCharacterAvailable  = errors.New("no character available")
	ErrNotFound              = errors.New("not found")
	ErrPlatformSend          = errors.New("platform send failed")
)

// SendError is an opaque failure reported by the platform for an action.
type SendError struct {
	Action string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPlatformSend, e.Action, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPlatformSend) true for every SendError.
func (e *SendError) Is(target error) bool { return target == ErrPlatformSend }
