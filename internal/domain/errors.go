package domain

import "errors"

// Error taxonomy (sentinels). Deterministic errors cause a raw message to be
// acked as a poison pill; everything else is left for redelivery.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrDecode           = errors.New("decode failed")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrInternal         = errors.New("internal error")
)

// IsDeterministic reports whether retrying the same input can never succeed.
// The ingestion loop acks such messages instead of letting the queue
// redeliver them forever.
func IsDeterministic(err error) bool {
	return errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrUnknownEventType) ||
		errors.Is(err, ErrInvalidArgument)
}
