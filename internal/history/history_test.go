package history

import (
	"sync"
	"testing"
	"time"

	"github.com/luki/scm10/internal/sensor"
)

func sample(i int, base time.Time) sensor.Sample {
	return sensor.Sample{
		Time:    base.Add(time.Duration(i) * time.Second),
		Elapsed: time.Duration(i) * time.Second,
		Kelvin:  float64(30 + i),
	}
}

func TestRingEvictsOldest(t *testing.T) {
	r := New(10)
	base := time.Date(2026, 2, 21, 14, 0, 0, 0, time.Local)
	for i := 0; i < 15; i++ {
		r.Append(sample(i, base))
	}

	pts := r.Snapshot()
	if len(pts) != 10 {
		t.Fatalf("expected 10 points, got %d", len(pts))
	}
	for i, p := range pts {
		want := float64(30 + 5 + i)
		if p.Kelvin != want {
			t.Errorf("point %d: got %f, want %f", i, p.Kelvin, want)
		}
	}
}

func TestRingUnbounded(t *testing.T) {
	r := New(0)
	base := time.Now()
	for i := 0; i < 5000; i++ {
		r.Append(sample(i, base))
	}
	if r.Len() != 5000 {
		t.Errorf("expected 5000 points, got %d", r.Len())
	}
}

func TestRingStats(t *testing.T) {
	r := New(5)
	base := time.Now()
	for i := 0; i < 7; i++ {
		r.Append(sample(i, base))
	}

	st := r.Stats()
	if st.Count != 5 {
		t.Errorf("Count: got %d, want 5", st.Count)
	}
	if st.Last != 36.0 {
		t.Errorf("Last: got %f, want 36.0", st.Last)
	}
	if st.Min != 30.0 {
		t.Errorf("Min: got %f, want 30.0", st.Min)
	}
	if st.Peak != 36.0 {
		t.Errorf("Peak: got %f, want 36.0", st.Peak)
	}
	if st.Avg != 34.0 {
		t.Errorf("Avg: got %f, want 34.0", st.Avg)
	}

	if got := r.LastN(3); len(got) != 3 || got[2].Kelvin != 36.0 {
		t.Errorf("LastN(3): got %+v", got)
	}
	if latest, ok := r.Latest(); !ok || latest.Kelvin != 36.0 {
		t.Errorf("Latest: got %+v, %v", latest, ok)
	}
}

func TestRingResetAndSetMax(t *testing.T) {
	r := New(0)
	base := time.Now()
	for i := 0; i < 8; i++ {
		r.Append(sample(i, base))
	}
	r.SetMax(3)
	if pts := r.Snapshot(); len(pts) != 3 || pts[0].Kelvin != 35.0 {
		t.Errorf("after SetMax(3): got %+v", pts)
	}

	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Len after Reset: got %d", r.Len())
	}
	if _, ok := r.Latest(); ok {
		t.Error("Latest after Reset returned a sample")
	}
	if st := r.Stats(); st.Count != 0 {
		t.Errorf("Stats after Reset: got %+v", st)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	r := New(4)
	r.Append(sensor.Sample{Kelvin: 1})
	snap := r.Snapshot()
	snap[0].Kelvin = 99
	if got, _ := r.Latest(); got.Kelvin != 1 {
		t.Errorf("Snapshot aliases ring storage: got %f", got.Kelvin)
	}
}

func TestConcurrentSnapshot(t *testing.T) {
	r := New(50)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			r.Append(sensor.Sample{Kelvin: float64(i), Elapsed: time.Duration(i)})
		}
	}()
	for i := 0; i < 200; i++ {
		snap := r.Snapshot()
		for j := 1; j < len(snap); j++ {
			if snap[j].Kelvin != snap[j-1].Kelvin+1 {
				t.Fatalf("snapshot out of order at %d: %f after %f", j, snap[j].Kelvin, snap[j-1].Kelvin)
			}
		}
	}
	wg.Wait()
}
