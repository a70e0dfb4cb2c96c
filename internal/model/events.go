package model

// EventKind names a house event.
type EventKind string

const (
	EventClientRateLimitTriggered  EventKind = "client_rate_limit_triggered"
	EventAccountRateLimitTriggered EventKind = "account_rate_limit_triggered"
)

// HouseEvent is recorded when a rate limit trips.
type HouseEvent struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Block     Block     `json:"block"`
	Client    Address   `json:"client"`
	Initiator Address   `json:"initiator"`
}
