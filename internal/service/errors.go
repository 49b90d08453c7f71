package service

import (
	"errors"
	"fmt"
)

// Validation failures, rejected before any store access.
var (
	ErrUnknownFlag        = errors.New("unknown message flag")
	ErrFlagNotEditable    = errors.New("flag cannot be changed through the API")
	ErrEmptyEdit          = errors.New("nothing to change")
	ErrInvalidPropagate   = errors.New("invalid propagate mode")
	ErrContentCannotMove  = errors.New("content edits apply to a single message")
	ErrEmptyAudience      = errors.New("message has no recipients")
	ErrEmptyRecipientList = errors.New("direct message needs at least one recipient")
	ErrEmptyMessage       = errors.New("message content is empty")
	ErrMissingTopic       = errors.New("channel message needs a topic")
	ErrEmptyReaction      = errors.New("reaction emoji is empty")
	ErrNotChannelMessage  = errors.New("only channel messages have topics")
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrChannelNotFound = errors.New("channel not found")
	ErrUserNotFound    = errors.New("user not found")

	ErrPermissionDenied  = errors.New("permission denied")
	ErrEditWindowExpired = errors.New("edit window has expired")
)

// DeadlineExceededError reports that a move covers messages older than the
// acting user's time budget. It carries enough data for the caller to offer
// moving only the still-movable suffix.
type DeadlineExceededError struct {
	FirstMovableID int64
	MovableCount   int
	TotalCount     int
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("move deadline exceeded: %d of %d messages still movable", e.MovableCount, e.TotalCount)
}
