package session

import (
	"sync"
	"time"

	"github.com/luki/scm10/internal/alarm"
	"github.com/luki/scm10/internal/sensor"
)

// EventKind identifies what happened in a session.
type EventKind int

const (
	EventStarted EventKind = iota
	EventStopped
	EventSample
	EventPollFailed
	EventLogWriteFailed
	EventNotificationFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventSample:
		return "sample"
	case EventPollFailed:
		return "poll_failed"
	case EventLogWriteFailed:
		return "log_write_failed"
	case EventNotificationFailed:
		return "notification_failed"
	default:
		return "unknown"
	}
}

// Event is published to subscribers. Sample and Alarm are set for
// EventSample, Err for the failure kinds, LogPath for EventStarted.
type Event struct {
	Kind    EventKind
	Time    time.Time
	Sample  sensor.Sample
	Alarm   alarm.Outcome
	Err     error
	LogPath string
}

// broker fans events out to subscribers. Sends never block; a
// subscriber whose buffer is full misses the event.
type broker struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func (b *broker) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[chan Event]struct{})
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			b.mu.Unlock()
		})
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
