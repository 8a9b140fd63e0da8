package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/lockstep/pkg/domain"
)

// Message is one serialized lifecycle event.
type Message struct {
	Type   domain.EventType
	Action string
	Data   string
}

type eventPayload struct {
	domain.ActionEvent
	WaitedMS float64 `json:"waited_ms,omitempty"`
	RanMS    float64 `json:"ran_ms,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// StreamManager fans lifecycle events out to active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan Message]struct{}
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan Message]struct{}),
		logger:      logger,
	}
}

func (sm *StreamManager) Subscribe() (<-chan Message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Message, 64)
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

func (sm *StreamManager) Broadcast(msg Message) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "action", msg.Action)
		}
	}
}

// Hooks broadcasts every lifecycle event.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	publish := func(ctx context.Context, e *domain.ActionEvent) {
		p := eventPayload{
			ActionEvent: *e,
			WaitedMS:    float64(e.Waited.Microseconds()) / 1000,
			RanMS:       float64(e.Ran.Microseconds()) / 1000,
		}
		if e.Err != nil {
			p.Error = e.Err.Error()
		}
		data, err := json.Marshal(p)
		if err != nil {
			sm.logger.Error("SSE: event encode failed", "err", err)
			return
		}
		sm.Broadcast(Message{Type: e.Type, Action: e.Action, Data: string(data)})
	}
	return domain.LifecycleHooks{
		OnQueued:  publish,
		OnGranted: publish,
		OnSettled: publish,
	}
}
