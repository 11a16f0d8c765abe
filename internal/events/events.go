package events

// Event is a real-time progress update pushed to web clients, used for
// level-up and achievement toasts.
type Event struct {
	Type        string `json:"type"`
	Username    string `json:"username,omitempty"`
	Level       int    `json:"level,omitempty"`
	Achievement string `json:"achievement,omitempty"`
	Name        string `json:"name,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// Broadcaster sends events to connected web clients.
// A nil Broadcaster is safe to use -- Broadcast becomes a no-op.
type Broadcaster interface {
	Broadcast(e Event)
}
