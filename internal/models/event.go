package models

import (
	"time"

	"github.com/hashicorp/go-uuid"
)

type EventType string

const (
	EventRoutesClaimed  EventType = "routes-claimed"
	EventPeerDown       EventType = "peer-down"
	EventPeerStillDown  EventType = "peer-still-down"
	EventPeerRecovered  EventType = "peer-recovered"
	EventMonitorStopped EventType = "monitor-stopped"
)

type FailoverEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	State        string    `json:"state"`
	Local        string    `json:"local"`
	Remote       string    `json:"remote"`
	Tables       []string  `json:"tables,omitempty"`
	FailedTables []string  `json:"failed_tables,omitempty"`
	Diagnostic   string    `json:"diagnostic,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewFailoverEvent(eventType EventType, state, local, remote string) FailoverEvent {
	id, err := uuid.GenerateUUID()
	if err != nil {
		id = ""
	}
	return FailoverEvent{
		ID:        id,
		Type:      eventType,
		State:     state,
		Local:     local,
		Remote:    remote,
		Timestamp: time.Now().UTC(),
	}
}
