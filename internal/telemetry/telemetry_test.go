package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"

	"github.com/luki/scm10/internal/alarm"
	"github.com/luki/scm10/internal/sensor"
	"github.com/luki/scm10/internal/session"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Error() error { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}

type published struct {
	topic   string
	payload []byte
}

type fakeMQTT struct {
	connectErr error
	publishTok *fakeToken

	mu           sync.Mutex
	sent         []published
	disconnected bool
}

func (f *fakeMQTT) Connect() mqtt.Token { return &fakeToken{err: f.connectErr} }

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{topic: topic, payload: payload.([]byte)})
	if f.publishTok != nil {
		return f.publishTok
	}
	return &fakeToken{}
}

func (f *fakeMQTT) Disconnect(uint) { f.disconnected = true }

func sampleEvent() session.Event {
	start := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return session.Event{
		Kind:   session.EventSample,
		Time:   start.Add(2 * time.Second),
		Sample: sensor.Sample{Time: start.Add(2 * time.Second), Elapsed: 2 * time.Second, Kelvin: 301.25},
		Alarm:  alarm.Outcome{InAlarm: true, High: true},
	}
}

func TestMQTTPublishSample(t *testing.T) {
	fc := &fakeMQTT{}
	p := newMQTTPublisher(fc, "lab/cryo", discard)
	if err := p.Publish(sampleEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(fc.sent) != 1 || fc.sent[0].topic != "lab/cryo/temperature" {
		t.Fatalf("sent: %+v", fc.sent)
	}
	var r Reading
	if err := json.Unmarshal(fc.sent[0].payload, &r); err != nil {
		t.Fatal(err)
	}
	if r.Kelvin != 301.25 || r.ElapsedS != 2 || !r.InAlarm || r.Side != "HIGH" {
		t.Errorf("reading: %+v", r)
	}
}

func TestMQTTPublishStatus(t *testing.T) {
	fc := &fakeMQTT{}
	p := newMQTTPublisher(fc, "", discard)
	ev := session.Event{Kind: session.EventPollFailed, Err: errors.New("read timeout")}
	if err := p.Publish(ev); err != nil {
		t.Fatal(err)
	}
	if fc.sent[0].topic != "scm10/status" {
		t.Errorf("topic: %q", fc.sent[0].topic)
	}
	var st Status
	json.Unmarshal(fc.sent[0].payload, &st)
	if st.Event != "poll_failed" || st.Error != "read timeout" {
		t.Errorf("status: %+v", st)
	}
}

func TestMQTTErrors(t *testing.T) {
	refused := errors.New("not authorized")
	p := newMQTTPublisher(&fakeMQTT{connectErr: refused}, "x", discard)
	if err := p.Connect(); !errors.Is(err, refused) {
		t.Errorf("Connect: got %v", err)
	}
	p = newMQTTPublisher(&fakeMQTT{publishTok: &fakeToken{pending: true}}, "x", discard)
	if err := p.Publish(sampleEvent()); !errors.Is(err, ErrPublishTimeout) {
		t.Errorf("Publish: got %v", err)
	}
}

func TestMQTTRunStopsOnClose(t *testing.T) {
	fc := &fakeMQTT{}
	p := newMQTTPublisher(fc, "x", discard)
	events := make(chan session.Event, 3)
	events <- sampleEvent()
	events <- session.Event{Kind: session.EventStopped}
	close(events)
	p.Run(context.Background(), events)
	p.Close()
	if len(fc.sent) != 2 || !fc.disconnected {
		t.Errorf("sent=%d disconnected=%v", len(fc.sent), fc.disconnected)
	}
}

type fakeRedis struct {
	key   string
	value interface{}
	ttl   time.Duration
	calls int
	err   error
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.calls++
	f.key, f.value, f.ttl = key, value, expiration
	return redis.NewStatusResult("OK", f.err)
}

func TestRedisStoresLastSample(t *testing.T) {
	fr := &fakeRedis{}
	c := newRedisCache(fr, discard)
	ctx := context.Background()
	if err := c.Store(ctx, session.Event{Kind: session.EventStarted}); err != nil {
		t.Fatal(err)
	}
	if fr.calls != 0 {
		t.Fatalf("non-sample event written")
	}
	if err := c.Store(ctx, sampleEvent()); err != nil {
		t.Fatal(err)
	}
	if fr.key != LastKey || fr.ttl != 24*time.Hour {
		t.Errorf("Set(%q, ttl %v)", fr.key, fr.ttl)
	}
	var r Reading
	if err := json.Unmarshal(fr.value.([]byte), &r); err != nil || r.Kelvin != 301.25 {
		t.Errorf("value %s: %v", fr.value, err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close without client: %v", err)
	}
}

func TestRedisRunLogsFailures(t *testing.T) {
	fr := &fakeRedis{err: errors.New("READONLY")}
	c := newRedisCache(fr, discard)
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan session.Event)
	done := make(chan struct{})
	go func() {
		c.Run(ctx, events)
		close(done)
	}()
	events <- sampleEvent()
	events <- sampleEvent()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if fr.calls != 2 {
		t.Errorf("calls: %d", fr.calls)
	}
}
