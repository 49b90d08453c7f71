package domain

import (
	"github.com/google/uuid"
)

// DeliveryRecord is one user's flag state for one message. The absence of a
// row for a message the user could access reads as {historical, read}; it is
// never treated as unread.
type DeliveryRecord struct {
	UserID    uuid.UUID   `json:"user_id"`
	MessageID int64       `json:"message_id"`
	Flags     MessageFlag `json:"flags"`
}

func (r *DeliveryRecord) IsRead() bool {
	return r.Flags.Has(FlagRead)
}

func (r *DeliveryRecord) IsHistorical() bool {
	return r.Flags.Has(FlagHistorical)
}
