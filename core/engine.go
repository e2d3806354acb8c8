package core

import (
	"context"
	"sync"
	"time"

	"github.com/WinnCook/real-time-iss-visualization-sub001/internal/logging"
	"github.com/WinnCook/real-time-iss-visualization-sub001/model"
	"github.com/WinnCook/real-time-iss-visualization-sub001/timectrl"
)

// BodyState is one body's output for the current frame, recomputed from
// scratch every step and consumed read-only downstream.
type BodyState struct {
	Name  string
	Class model.BodyClass
	// RawPosition is the physical position in the parent's frame (AU or km).
	RawPosition Vec3
	// DisplayPosition is the scene-frame position in display units, after
	// scaling, parent tilt, and translation by the parent's position.
	DisplayPosition Vec3
	RotationAngle   float64
	DisplayRadius   float64
}

// FrameSnapshot is the immutable per-frame output handed to the renderer and
// API surface.
type FrameSnapshot struct {
	SimSeconds  float64
	Regime      ScaleRegime
	Bodies      []BodyState
	TrackedName string
	TrackedMode model.TrackingMode
	Trail       []Vec3
}

// TrackedSupplier reconciles the live-tracked object's position; implemented
// by the tracking package.
type TrackedSupplier interface {
	Apply(outcome model.FetchOutcome, nowWall time.Time)
	LocalPosition(simTime time.Time, nowWall time.Time) (Vec3, model.TrackingMode)
	Mode(nowWall time.Time) model.TrackingMode
}

// EngineObserver receives engine telemetry; implemented by the observability
// collectors. All methods must be cheap and non-blocking.
type EngineObserver interface {
	FrameCompleted(d time.Duration)
	BodyUpdateFailed(body string)
	TrackingModeChanged(mode model.TrackingMode)
	FetchOutcome(success bool)
	KeplerSolve(iterations int)
	AdvisoryEmitted()
}

type noopObserver struct{}

func (noopObserver) FrameCompleted(time.Duration)           {}
func (noopObserver) BodyUpdateFailed(string)                {}
func (noopObserver) TrackingModeChanged(model.TrackingMode) {}
func (noopObserver) FetchOutcome(bool)                      {}
func (noopObserver) KeplerSolve(int)                        {}
func (noopObserver) AdvisoryEmitted()                       {}

// subscriberEvictionThreshold is how many panics a frame or advisory
// subscriber may cause before it is dropped.
const subscriberEvictionThreshold = 3

type frameSub struct {
	fn       func(FrameSnapshot)
	failures int
}

type advisorySub struct {
	fn       func(mode model.TrackingMode, message string)
	failures int
}

// EngineConfig carries the startup knobs the surrounding application owns.
type EngineConfig struct {
	TrailCapacity int
	InitialRegime ScaleRegime
}

// Engine owns the per-frame astronomical state computation. All mutation
// happens on the frame goroutine in Step; the queue, regime, and snapshot
// are the only concurrent touch points and carry their own locks.
type Engine struct {
	log      logging.Logger
	catalog  *Catalog
	prop     *Propagator
	conv     *Converter
	tracked  TrackedSupplier
	trail    *TrailBuffer
	observer EngineObserver
	now      func() time.Time

	regimeMu sync.RWMutex
	regime   ScaleRegime

	pendingMu sync.Mutex
	pending   []model.FetchOutcome

	snapMu sync.RWMutex
	latest FrameSnapshot

	subMu        sync.Mutex
	frameSubs    []*frameSub
	advisorySubs []*advisorySub

	lastMode    model.TrackingMode
	hadMode     bool
	trackedName string
}

// NewEngine wires the engine context explicitly; there is no package-level
// state. The converter is built from the catalog's regime factors, and any
// orbit that would rely on the display clamp is called out at construction.
func NewEngine(catalog *Catalog, tracked TrackedSupplier, cfg EngineConfig, log logging.Logger, observer EngineObserver) (*Engine, error) {
	if log == nil {
		log = logging.Noop()
	}
	if observer == nil {
		observer = noopObserver{}
	}

	conv, err := NewConverter(catalog.Factors)
	if err != nil {
		return nil, err
	}

	trailCap := cfg.TrailCapacity
	if trailCap <= 0 {
		trailCap = 50
	}

	e := &Engine{
		log:      log,
		catalog:  catalog,
		prop:     NewPropagator(log),
		conv:     conv,
		tracked:  tracked,
		trail:    NewTrailBuffer(trailCap),
		observer: observer,
		now:      time.Now,
		regime:   cfg.InitialRegime,
	}
	e.prop.SetSolveObserver(observer.KeplerSolve)

	for _, def := range catalog.Bodies {
		if def.Tracked {
			e.trackedName = def.Name
		}
		e.warnClampedOrbit(def)
	}
	return e, nil
}

func (e *Engine) warnClampedOrbit(def model.BodyDefinition) {
	if def.Parent == "" || def.Elements.Unit != model.UnitKm {
		return
	}
	parent, ok := e.catalog.Body(def.Parent)
	if !ok {
		return
	}
	for _, regime := range []ScaleRegime{RegimeReal, RegimeEnlarged} {
		if e.conv.OrbitClampEngaged(def.Elements.SemiMajorAxis, parent.RadiusKm, parent.Class, regime) {
			e.log.Warn(context.Background(), "orbit display radius relies on clamp",
				logging.String("body", def.Name),
				logging.String("parent", def.Parent),
				logging.String("regime", regime.String()),
			)
		}
	}
}

// Converter exposes the scale converter for the API surface.
func (e *Engine) Converter() *Converter { return e.conv }

// ScaleRegime returns the regime frames are currently computed under.
func (e *Engine) ScaleRegime() ScaleRegime {
	e.regimeMu.RLock()
	defer e.regimeMu.RUnlock()
	return e.regime
}

// SetScaleRegime switches the active regime; it takes effect at the next
// frame, never mid-frame.
func (e *Engine) SetScaleRegime(regime ScaleRegime) {
	e.regimeMu.Lock()
	defer e.regimeMu.Unlock()
	e.regime = regime
}

// QueueOutcome hands a fetch outcome to the engine. It is applied at the
// start of the next frame, never interrupting an in-flight computation.
func (e *Engine) QueueOutcome(outcome model.FetchOutcome) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	e.pending = append(e.pending, outcome)
}

// Latest returns the most recent frame snapshot.
func (e *Engine) Latest() FrameSnapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.latest
}

// SubscribeFrames registers a callback invoked with every completed frame.
// A subscriber that panics repeatedly is evicted.
func (e *Engine) SubscribeFrames(fn func(FrameSnapshot)) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.frameSubs = append(e.frameSubs, &frameSub{fn: fn})
}

// SubscribeAdvisories registers a callback for tracking advisories.
func (e *Engine) SubscribeAdvisories(fn func(mode model.TrackingMode, message string)) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.advisorySubs = append(e.advisorySubs, &advisorySub{fn: fn})
}

// PublishAdvisory fans a tracking advisory out to subscribers.
func (e *Engine) PublishAdvisory(mode model.TrackingMode, message string) {
	e.observer.AdvisoryEmitted()

	e.subMu.Lock()
	subs := make([]*advisorySub, len(e.advisorySubs))
	copy(subs, e.advisorySubs)
	e.subMu.Unlock()

	for _, sub := range subs {
		e.callAdvisorySub(sub, mode, message)
	}
	e.evictAdvisorySubs()
}

func (e *Engine) callAdvisorySub(sub *advisorySub, mode model.TrackingMode, message string) {
	defer func() {
		if r := recover(); r != nil {
			sub.failures++
			e.log.Warn(context.Background(), "advisory subscriber panicked",
				logging.Any("panic", r),
				logging.Int("failures", sub.failures),
			)
		}
	}()
	sub.fn(mode, message)
}

func (e *Engine) evictAdvisorySubs() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	kept := e.advisorySubs[:0]
	for _, sub := range e.advisorySubs {
		if sub.failures < subscriberEvictionThreshold {
			kept = append(kept, sub)
		}
	}
	e.advisorySubs = kept
}

// Step computes one frame at the given simulated time: drain queued fetch
// outcomes, propagate every body, scale and tilt into display space, record
// the tracked object's trail, and publish the snapshot. A failure in one
// body's computation never prevents the others from updating.
func (e *Engine) Step(simSeconds float64) FrameSnapshot {
	start := e.now()
	nowWall := start
	simTime := timectrl.TimeAtSimSeconds(simSeconds)
	regime := e.ScaleRegime()

	e.pendingMu.Lock()
	pending := e.pending
	e.pending = nil
	e.pendingMu.Unlock()
	for _, outcome := range pending {
		e.observer.FetchOutcome(outcome.Err == nil)
		if e.tracked != nil {
			e.tracked.Apply(outcome, nowWall)
		}
	}

	snap := FrameSnapshot{
		SimSeconds:  simSeconds,
		Regime:      regime,
		Bodies:      make([]BodyState, 0, len(e.catalog.Bodies)),
		TrackedName: e.trackedName,
	}

	displayPos := map[string]Vec3{}
	displayRadius := map[string]float64{}
	var trackedDisplay Vec3
	var trackedSeen bool

	for _, def := range e.catalog.Bodies {
		state, ok := e.stepBody(def, simSeconds, simTime, nowWall, regime, displayPos, displayRadius, &snap)
		if !ok {
			continue
		}
		displayPos[def.Name] = state.DisplayPosition
		displayRadius[def.Name] = state.DisplayRadius
		snap.Bodies = append(snap.Bodies, state)
		if def.Tracked {
			trackedDisplay = state.DisplayPosition
			trackedSeen = true
		}
	}

	if trackedSeen {
		e.trail.Push(trackedDisplay)
	}
	snap.Trail = e.trail.Snapshot()

	if mode := snap.TrackedMode; !e.hadMode || mode != e.lastMode {
		e.observer.TrackingModeChanged(mode)
		e.lastMode = mode
		e.hadMode = true
	}

	e.snapMu.Lock()
	e.latest = snap
	e.snapMu.Unlock()

	e.subMu.Lock()
	subs := make([]*frameSub, len(e.frameSubs))
	copy(subs, e.frameSubs)
	e.subMu.Unlock()
	for _, sub := range subs {
		e.callFrameSub(sub, snap)
	}
	e.evictFrameSubs()

	e.observer.FrameCompleted(e.now().Sub(start))
	return snap
}

// stepBody computes one body's state; a panic is contained so the rest of
// the frame still updates.
func (e *Engine) stepBody(
	def model.BodyDefinition,
	simSeconds float64,
	simTime, nowWall time.Time,
	regime ScaleRegime,
	displayPos map[string]Vec3,
	displayRadius map[string]float64,
	snap *FrameSnapshot,
) (state BodyState, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			e.observer.BodyUpdateFailed(def.Name)
			e.log.Error(context.Background(), "body update failed",
				logging.String("body", def.Name),
				logging.Any("panic", r),
			)
		}
	}()

	state = BodyState{
		Name:          def.Name,
		Class:         def.Class,
		DisplayRadius: e.conv.ToDisplayRadius(def.RadiusKm, def.Class, regime),
	}

	switch {
	case def.Parent == "":
		// Central star sits at the scene origin.

	case def.Tracked && e.tracked != nil:
		local, mode := e.tracked.LocalPosition(simTime, nowWall)
		snap.TrackedMode = mode
		state.RawPosition = local
		state.DisplayPosition = e.placeOrbiting(def, local, regime, displayPos, displayRadius)

	default:
		raw, err := e.prop.PositionAt(def.Elements, simSeconds)
		if err != nil {
			e.observer.BodyUpdateFailed(def.Name)
			e.log.Error(context.Background(), "body update failed",
				logging.String("body", def.Name),
				logging.String("error", err.Error()),
			)
			return BodyState{}, false
		}
		state.RawPosition = raw

		if def.Elements.Unit == model.UnitAU {
			state.DisplayPosition = e.conv.ToDisplayPosition(raw, model.UnitAU, regime).
				Add(displayPos[def.Parent])
		} else {
			state.DisplayPosition = e.placeOrbiting(def, raw, regime, displayPos, displayRadius)
		}
	}

	state.RotationAngle = e.rotationAngle(def, simSeconds)
	return state, true
}

// placeOrbiting positions a planetocentric body (moon or spacecraft): scale
// the km-frame position with the orbit clamp, rotate by the parent's axial
// tilt into the parent's orbital-plane frame, then translate by the parent.
func (e *Engine) placeOrbiting(def model.BodyDefinition, localKm Vec3, regime ScaleRegime, displayPos map[string]Vec3, displayRadius map[string]float64) Vec3 {
	parentRadius := displayRadius[def.Parent]
	scaled := e.conv.OrbitDisplayPosition(localKm, parentRadius, regime)

	tilt := 0.0
	if parent, ok := e.catalog.Body(def.Parent); ok {
		tilt = parent.Elements.AxialTiltDeg
	}
	tilted := ApplyParentTilt(scaled, tilt)
	return tilted.Add(displayPos[def.Parent])
}

func (e *Engine) rotationAngle(def model.BodyDefinition, simSeconds float64) float64 {
	if def.Parent == "" && def.Elements.RotationPeriod == 0 {
		return 0
	}
	angle, err := e.prop.RotationAngleAt(def.Elements, simSeconds)
	if err != nil {
		e.log.Warn(context.Background(), "rotation angle unavailable",
			logging.String("body", def.Name),
			logging.String("error", err.Error()),
		)
		return 0
	}
	return angle
}

func (e *Engine) callFrameSub(sub *frameSub, snap FrameSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			sub.failures++
			e.log.Warn(context.Background(), "frame subscriber panicked",
				logging.Any("panic", r),
				logging.Int("failures", sub.failures),
			)
		}
	}()
	sub.fn(snap)
}

func (e *Engine) evictFrameSubs() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	kept := e.frameSubs[:0]
	for _, sub := range e.frameSubs {
		if sub.failures < subscriberEvictionThreshold {
			kept = append(kept, sub)
		}
	}
	e.frameSubs = kept
}
