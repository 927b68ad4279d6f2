package domain

import "errors"

// ErrNoSummary reports a successful profile lookup that holds no summary yet.
var ErrNoSummary = errors.New("no profile summary available")

// Registration identifies a new user for the personalization service.
type Registration struct {
	Email    string
	Name     string
	Timezone string
}

// IngestFailure is a conversation the personalization service did not accept.
type IngestFailure struct {
	UserID   string
	Reason   string
	Status   int // upstream HTTP status, 0 for transport failures
	Messages []Message
}
