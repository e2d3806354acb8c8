// Package api exposes the engine to the renderer and UI over HTTP and
// WebSocket. It is presentation plumbing: every value it serves comes
// straight from the engine's frame snapshots and clock accessors.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/WinnCook/real-time-iss-visualization-sub001/core"
	"github.com/WinnCook/real-time-iss-visualization-sub001/internal/logging"
	"github.com/WinnCook/real-time-iss-visualization-sub001/model"
	"github.com/WinnCook/real-time-iss-visualization-sub001/timectrl"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	engine     *core.Engine
	clock      *timectrl.Clock
	log        logging.Logger

	upgrader websocket.Upgrader

	connMu sync.Mutex
	conns  map[*wsConn]struct{}
}

type wsConn struct {
	conn *websocket.Conn
	out  chan wsMessage
}

type wsMessage struct {
	frame    *frameJSON
	advisory *advisoryJSON
}

// NewServer creates a configured HTTP server and registers itself as the
// engine's frame and advisory subscriber.
func NewServer(addr string, engine *core.Engine, clock *timectrl.Clock, metricsHandler http.Handler, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}

	s := &Server{
		engine: engine,
		clock:  clock,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: map[*wsConn]struct{}{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	mux.HandleFunc("GET /api/v1/frame", s.handleFrame)
	mux.HandleFunc("GET /api/v1/time", s.handleTime)
	mux.HandleFunc("POST /api/v1/clock/timescale", s.handleTimeScale)
	mux.HandleFunc("POST /api/v1/clock/pause", s.handlePause)
	mux.HandleFunc("POST /api/v1/scale/regime", s.handleRegime)
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	engine.SubscribeFrames(s.broadcastFrame)
	engine.SubscribeAdvisories(s.broadcastAdvisory)
	return s
}

// HTTPServer returns the underlying *http.Server for external control
// (shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// ---- wire shapes ----

type vecJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func toVecJSON(v core.Vec3) vecJSON {
	return vecJSON{X: v.X, Y: v.Y, Z: v.Z}
}

type bodyStateJSON struct {
	Name                 string  `json:"name"`
	Class                string  `json:"class"`
	DisplayPosition      vecJSON `json:"display_position"`
	RotationAngleRadians float64 `json:"rotation_angle_radians"`
	DisplayRadius        float64 `json:"display_radius"`
}

type trackedJSON struct {
	Name  string    `json:"name"`
	Mode  string    `json:"mode"`
	Trail []vecJSON `json:"trail"`
}

type frameJSON struct {
	Type       string          `json:"type"`
	SimSeconds float64         `json:"sim_seconds"`
	Regime     string          `json:"regime"`
	Bodies     []bodyStateJSON `json:"bodies"`
	Tracked    *trackedJSON    `json:"tracked,omitempty"`
}

type advisoryJSON struct {
	Type    string `json:"type"`
	Mode    string `json:"mode"`
	Message string `json:"message"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func toFrameJSON(snap core.FrameSnapshot) frameJSON {
	out := frameJSON{
		Type:       "frame",
		SimSeconds: snap.SimSeconds,
		Regime:     snap.Regime.String(),
		Bodies:     make([]bodyStateJSON, 0, len(snap.Bodies)),
	}
	for _, b := range snap.Bodies {
		out.Bodies = append(out.Bodies, bodyStateJSON{
			Name:                 b.Name,
			Class:                b.Class.String(),
			DisplayPosition:      toVecJSON(b.DisplayPosition),
			RotationAngleRadians: b.RotationAngle,
			DisplayRadius:        b.DisplayRadius,
		})
	}
	if snap.TrackedName != "" {
		trail := make([]vecJSON, 0, len(snap.Trail))
		for _, p := range snap.Trail {
			trail = append(trail, toVecJSON(p))
		}
		out.Tracked = &trackedJSON{
			Name:  snap.TrackedName,
			Mode:  snap.TrackedMode.String(),
			Trail: trail,
		}
	}
	return out
}

// ---- handlers ----

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toFrameJSON(s.engine.Latest()))
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sim_seconds": s.clock.SimulatedTime(),
		"time_scale":  s.clock.TimeScale(),
		"paused":      s.clock.Paused(),
		"regime":      s.engine.ScaleRegime().String(),
	})
}

func (s *Server) handleTimeScale(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Factor float64 `json:"factor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "malformed body"})
		return
	}
	if err := s.clock.SetTimeScale(req.Factor); err != nil {
		if errors.Is(err, timectrl.ErrInvalidTimeScale) {
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"time_scale": s.clock.TimeScale()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "malformed body"})
		return
	}
	s.clock.SetPaused(req.Paused)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": s.clock.Paused()})
}

func (s *Server) handleRegime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Regime string `json:"regime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "malformed body"})
		return
	}
	regime, err := core.ParseScaleRegime(req.Regime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		return
	}
	s.engine.SetScaleRegime(regime)
	writeJSON(w, http.StatusOK, map[string]string{"regime": regime.String()})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), "websocket upgrade failed",
			logging.String("error", err.Error()))
		return
	}

	c := &wsConn{conn: conn, out: make(chan wsMessage, 8)}
	s.connMu.Lock()
	s.conns[c] = struct{}{}
	s.connMu.Unlock()

	go s.writeLoop(c)

	// Reads are only needed to notice the peer going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.dropConn(c)
				return
			}
		}
	}()
}

func (s *Server) writeLoop(c *wsConn) {
	for msg := range c.out {
		var payload any
		switch {
		case msg.frame != nil:
			payload = msg.frame
		case msg.advisory != nil:
			payload = msg.advisory
		default:
			continue
		}
		if err := c.conn.WriteJSON(payload); err != nil {
			s.dropConn(c)
			return
		}
	}
}

func (s *Server) dropConn(c *wsConn) {
	s.connMu.Lock()
	if _, ok := s.conns[c]; ok {
		delete(s.conns, c)
		close(c.out)
	}
	s.connMu.Unlock()
	c.conn.Close()
}

func (s *Server) broadcastFrame(snap core.FrameSnapshot) {
	frame := toFrameJSON(snap)
	s.broadcast(wsMessage{frame: &frame})
}

func (s *Server) broadcastAdvisory(mode model.TrackingMode, message string) {
	s.broadcast(wsMessage{advisory: &advisoryJSON{
		Type:    "advisory",
		Mode:    mode.String(),
		Message: message,
	}})
}

// broadcast never blocks the frame loop: a connection whose buffer is full
// just misses that frame.
func (s *Server) broadcast(msg wsMessage) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for c := range s.conns {
		select {
		case c.out <- msg:
		default:
		}
	}
}

// ---- middleware ----

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The websocket upgrade needs the raw ResponseWriter (http.Hijacker).
		if r.URL.Path == "/api/v1/stream" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ctx, reqLog := logging.WithRequestLogger(r.Context(), s.log)
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sr, r.WithContext(ctx))

		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		reqLog.Info(ctx, "request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.String("status", strconv.Itoa(sr.statusCode)),
			logging.Int("duration_ms", int(time.Since(start).Milliseconds())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
