package issapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/WinnCook/real-time-iss-visualization-sub001/model"
)

const samplePayload = `{
  "name": "iss",
  "id": 25544,
  "latitude": 50.11496269845,
  "longitude": 118.07900427317,
  "altitude": 408.05526028199,
  "velocity": 27635.971970874,
  "visibility": "daylight",
  "timestamp": 1364069476
}`

func TestFetchParsesPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	fix, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if fix.Latitude != 50.11496269845 || fix.Longitude != 118.07900427317 {
		t.Fatalf("fix = %+v", fix)
	}
	if fix.AltitudeKm != 408.05526028199 {
		t.Fatalf("altitude = %v", fix.AltitudeKm)
	}
	if fix.Timestamp != 1364069476 {
		t.Fatalf("timestamp = %v", fix.Timestamp)
	}
}

func TestFetchRetriesTransientFailure(t *testing.T) {
	var mu sync.Mutex
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, nil)
	fix, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch should succeed after retries: %v", err)
	}
	if fix.Latitude == 0 {
		t.Fatalf("fix not parsed: %+v", fix)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls < 3 {
		t.Fatalf("server called %d times, want at least 3", calls)
	}
}

func TestFetchFailsWhenBudgetSpent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 200*time.Millisecond, nil)
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("Fetch should fail against a permanently failing endpoint")
	}
}

func TestFetchFailsOnMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"latitude": "not a number"`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 200*time.Millisecond, nil)
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("Fetch should fail on malformed payload")
	}
}

func TestFetchRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, 5*time.Second, nil)
	if _, err := c.Fetch(ctx); err == nil {
		t.Fatal("Fetch should fail when the context ends")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", 0, nil)
	if c.SourceURL() != DefaultSourceURL {
		t.Fatalf("SourceURL = %q, want default", c.SourceURL())
	}
}

func TestPollerDeliversSequencedOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	outcomes := make(chan model.FetchOutcome, 16)
	c := NewClient(srv.URL, time.Second, nil)
	p := NewPoller(c, 30*time.Millisecond, func(o model.FetchOutcome) { outcomes <- o }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	var got []model.FetchOutcome
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case o := <-outcomes:
			got = append(got, o)
		case <-timeout:
			t.Fatalf("only %d outcomes after 2s", len(got))
		}
	}
	cancel()
	<-done

	seen := map[uint64]bool{}
	for _, o := range got {
		if o.Err != nil {
			t.Fatalf("outcome %d failed: %v", o.Seq, o.Err)
		}
		if o.Seq == 0 || seen[o.Seq] {
			t.Fatalf("sequence numbers not unique and positive: %v", got)
		}
		seen[o.Seq] = true
	}
}

func TestPollerDeliversFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	outcomes := make(chan model.FetchOutcome, 4)
	c := NewClient(srv.URL, 100*time.Millisecond, nil)
	p := NewPoller(c, 50*time.Millisecond, func(o model.FetchOutcome) { outcomes <- o }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case o := <-outcomes:
		if o.Err == nil {
			t.Fatal("outcome should carry the fetch error")
		}
		if o.Seq == 0 {
			t.Fatal("failure outcomes are sequenced too")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome delivered")
	}
}
