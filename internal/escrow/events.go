package escrow

// EventType names a committed escrow transition.
type EventType string

const (
	EventOpened    EventType = "escrow_opened"
	EventCancelled EventType = "escrow_cancelled"
	EventCompleted EventType = "escrow_completed"
)

// Event is published after a transition commits.
type Event struct {
	Type    EventType `json:"type"`
	Receipt *Receipt  `json:"receipt"`
}

// Emitter receives committed events. Emit must not block.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards events.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}

func eventFor(kind Kind) EventType {
	switch kind {
	case KindOpen:
		return EventOpened
	case KindCancel:
		return EventCancelled
	default:
		return EventCompleted
	}
}
