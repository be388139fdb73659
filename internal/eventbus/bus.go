package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type names a board event. UI layers subscribe to these instead of
// holding references into the board's internals.
type Type string

const (
	TypeBoardRefreshed Type = "board.refreshed"
	TypeTaskCreated    Type = "task.created"
	TypeTaskMoved      Type = "task.moved"
	TypeTaskMoveFailed Type = "task.move_failed"
	TypeTaskEdited     Type = "task.edited"
	TypeTaskArchived   Type = "task.archived"
	TypeTaskCompleted  Type = "task.completed"
	TypeCelebration    Type = "celebration"
)

type Event struct {
	ID         string
	Type       Type
	TaskID     string
	Payload    string
	OccurredAt time.Time
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan Event) {
	id := ulid.Make().String()
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}

func (b *Bus) PublishNew(eventType Type, taskID, payload string) {
	b.Publish(Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		TaskID:     taskID,
		Payload:    payload,
		OccurredAt: time.Now(),
	})
}
