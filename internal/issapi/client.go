// Package issapi is the network collaborator for the tracked spacecraft: it
// fetches the live position from a wheretheiss.at-style endpoint and hands
// parsed fixes (or failure markers) to the engine. The engine never performs
// HTTP itself.
package issapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/WinnCook/real-time-iss-visualization-sub001/internal/logging"
	"github.com/WinnCook/real-time-iss-visualization-sub001/model"
)

// DefaultSourceURL is the public ISS position endpoint.
const DefaultSourceURL = "https://api.wheretheiss.at/v1/satellites/25544"

// Client retrieves one position fix per call, retrying transient failures
// with exponential backoff bounded well inside the poll interval.
type Client struct {
	sourceURL  string
	httpClient *http.Client
	maxElapsed time.Duration
	log        logging.Logger
	tracer     trace.Tracer
}

// NewClient creates a Client for the given source URL. An empty URL selects
// the default endpoint.
func NewClient(sourceURL string, maxElapsed time.Duration, log logging.Logger) *Client {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	if maxElapsed <= 0 {
		maxElapsed = 3 * time.Second
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Client{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: maxElapsed,
		},
		maxElapsed: maxElapsed,
		log:        log,
		tracer:     otel.Tracer("issapi"),
	}
}

// SourceURL returns the configured source URL.
func (c *Client) SourceURL() string {
	return c.sourceURL
}

type positionJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"` // km
	Timestamp float64 `json:"timestamp"`
}

// Fetch retrieves one fix, retrying transient errors until the backoff
// budget is spent. The returned error is the failure marker the tracking
// machine absorbs; it is never fatal to the caller.
func (c *Client) Fetch(ctx context.Context) (model.PositionFix, error) {
	ctx, span := c.tracer.Start(ctx, "issapi.fetch",
		trace.WithAttributes(attribute.String("source_url", c.sourceURL)))
	defer span.End()

	fix, err := backoff.Retry(ctx, func() (model.PositionFix, error) {
		return c.fetchOnce(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.maxElapsed),
	)
	if err != nil {
		span.RecordError(err)
		return model.PositionFix{}, err
	}
	return fix, nil
}

func (c *Client) fetchOnce(ctx context.Context) (model.PositionFix, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sourceURL, nil)
	if err != nil {
		return model.PositionFix{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.PositionFix{}, fmt.Errorf("fetching position: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.PositionFix{}, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, c.sourceURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.PositionFix{}, fmt.Errorf("reading response body: %w", err)
	}

	var payload positionJSON
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.PositionFix{}, fmt.Errorf("parsing position payload: %w", err)
	}

	return model.PositionFix{
		Latitude:   payload.Latitude,
		Longitude:  payload.Longitude,
		AltitudeKm: payload.Altitude,
		Timestamp:  payload.Timestamp,
	}, nil
}

// Poller issues fetches on a fixed wall-clock interval and delivers every
// outcome, tagged with a monotonic sequence number, to the sink. A fetch
// still in flight when the next one is due is simply superseded: the tracking
// machine compares sequence numbers at application time, so the late result
// loses.
type Poller struct {
	client   *Client
	interval time.Duration
	sink     func(model.FetchOutcome)
	log      logging.Logger
	seq      atomic.Uint64
}

// NewPoller constructs a poller delivering outcomes to sink.
func NewPoller(client *Client, interval time.Duration, sink func(model.FetchOutcome), log logging.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Poller{client: client, interval: interval, sink: sink, log: log}
}

// Run blocks until ctx is cancelled, fetching once immediately and then on
// every interval tick. Each fetch runs in its own goroutine so a slow
// response never delays the schedule.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.dispatch(ctx)
		}
	}
}

func (p *Poller) dispatch(ctx context.Context) {
	seq := p.seq.Add(1)
	go func() {
		fetchCtx, cancel := context.WithTimeout(ctx, p.interval)
		defer cancel()

		fix, err := p.client.Fetch(fetchCtx)
		if err != nil {
			p.log.Debug(ctx, "position fetch failed",
				logging.Any("seq", seq),
				logging.String("error", err.Error()),
			)
		}
		p.sink(model.FetchOutcome{Seq: seq, Fix: fix, Err: err})
	}()
}
