package web

import (
	"bufio"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// subscriberBuffer is how many events a client may lag before it drops.
const subscriberBuffer = 64

// StatusEvent is one status line pushed to SSE clients.
type StatusEvent struct {
	Time    string `json:"t"`
	Level   string `json:"l,omitempty"`
	Routine string `json:"routine,omitempty"`
	Msg     string `json:"msg"`
}

// StatusBroadcaster fans status events out to SSE clients. Sends never
// block: a client whose buffer is full misses the event.
type StatusBroadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan string
	now    func() time.Time
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		subs: make(map[int]chan string),
		now:  time.Now,
	}
}

// Subscribe registers a client. The returned func unregisters it and closes
// the channel; it is safe to call more than once.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Clients returns the number of subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish sends evt to every client, stamping it with the current time
// unless Time is already set.
func (b *StatusBroadcaster) Publish(evt StatusEvent) {
	if evt.Time == "" {
		evt.Time = b.now().Format(time.RFC3339)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	b.send(string(data))
}

func (b *StatusBroadcaster) send(payload string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.Publish(StatusEvent{Level: level, Msg: msg})
}

// RoutineEvent reports a routine state change.
func (b *StatusBroadcaster) RoutineEvent(level, routine, msg string) {
	b.Publish(StatusEvent{Level: level, Routine: routine, Msg: msg})
}

// BroadcastWriter lets the debug logger be teed into the status stream.
// Each non-blank line written becomes one "info" event.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (int, error) {
	sc := bufio.NewScanner(strings.NewReader(string(p)))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			w.b.Broadcast("info", line)
		}
	}
	return len(p), nil
}
