package watcher

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventConnectionUpdated EventType = "connection_updated"
	EventStoreChanged      EventType = "store_changed"
	EventSendStatus        EventType = "send_status"
	EventGasPriceUpdated   EventType = "gas_price_updated"
	EventQueryFailed       EventType = "query_failed"
)

// Event represents a session event.
//
// Data is a store.ConnectionState, store.Change, send.Status,
// models.GasPriceData or QueryFailure depending on Type.
type Event struct {
	Type EventType
	Data interface{}
}

// QueryFailure is a balance refresh that failed.
type QueryFailure struct {
	ChainID uint64
	Err     error
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
