package models

import "time"

type EventKind string

const (
	EventMarkersChanged      EventKind = "markers.changed"
	EventContactsChanged     EventKind = "contacts.changed"
	EventInventoryChanged    EventKind = "inventory.changed"
	EventConnectivityOnline  EventKind = "connectivity.online"
	EventConnectivityOffline EventKind = "connectivity.offline"
	EventConnectivityQuality EventKind = "connectivity.quality"
	EventSyncPrompt          EventKind = "sync.prompt"
	EventSyncCompleted       EventKind = "sync.completed"
	EventIntelUpdated        EventKind = "intel.updated"
	EventBroadcastReceived   EventKind = "broadcast.received"
	EventBroadcastConfigured EventKind = "broadcast.configured"
	EventBoardPosted         EventKind = "board.posted"
)

type Event struct {
	Kind    EventKind `json:"kind"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

func NewEvent(kind EventKind, payload any) Event {
	return Event{Kind: kind, At: time.Now(), Payload: payload}
}
