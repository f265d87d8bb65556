package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
)

const (
	RealtimeEventNoteCreated     = "note-created"
	RealtimeEventNoteDeleted     = "note-deleted"
	RealtimeEventNoteWriteFailed = "note-write-failed"
	realtimeEventHeartbeat       = "heartbeat"
	realtimeBufferSize           = 16
)

// RealtimeMessage is one event delivered to a user's open streams.
type RealtimeMessage struct {
	UserID    notes.UserID
	EventType string
	NoteID    notes.NoteID
	Operation notes.WriteOperation
	Timestamp time.Time
}

// RealtimeDispatcher fans note events out to per-user subscribers.
// Slow subscribers drop events rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[notes.UserID]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[notes.UserID]map[int64]*realtimeSubscriber),
		bufferSize:  realtimeBufferSize,
		clock:       time.Now,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID notes.UserID) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(userID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.UserID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// NotifyChange publishes the outcome of a background note write.
func (d *RealtimeDispatcher) NotifyChange(event notes.ChangeEvent) {
	eventType := ""
	switch event.Kind {
	case notes.ChangeCreated:
		eventType = RealtimeEventNoteCreated
	case notes.ChangeDeleted:
		eventType = RealtimeEventNoteDeleted
	case notes.ChangeWriteFailed:
		eventType = RealtimeEventNoteWriteFailed
	default:
		return
	}
	d.Publish(RealtimeMessage{
		UserID:    event.UserID,
		EventType: eventType,
		NoteID:    event.NoteID,
		Operation: event.Operation,
		Timestamp: d.clock().UTC(),
	})
}

// subscriberCount reports open streams for the user.
func (d *RealtimeDispatcher) subscriberCount(userID notes.UserID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) registerSubscriber(userID notes.UserID, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(userID notes.UserID, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}
