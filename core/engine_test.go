package core

import (
	"errors"
	"testing"
	"time"

	"github.com/WinnCook/real-time-iss-visualization-sub001/model"
)

// fakeSupplier scripts the tracked object's behavior per test.
type fakeSupplier struct {
	pos      Vec3
	mode     model.TrackingMode
	applied  []model.FetchOutcome
	panicOn  bool
	localCnt int
}

func (f *fakeSupplier) Apply(outcome model.FetchOutcome, _ time.Time) {
	f.applied = append(f.applied, outcome)
}

func (f *fakeSupplier) LocalPosition(_, _ time.Time) (Vec3, model.TrackingMode) {
	f.localCnt++
	if f.panicOn {
		panic("scripted failure")
	}
	return f.pos, f.mode
}

func (f *fakeSupplier) Mode(time.Time) model.TrackingMode { return f.mode }

type recordingObserver struct {
	frames      int
	bodyFailed  []string
	modeChanges []model.TrackingMode
	fetches     []bool
	solves      int
	advisories  int
}

func (r *recordingObserver) FrameCompleted(time.Duration) { r.frames++ }
func (r *recordingObserver) BodyUpdateFailed(body string) { r.bodyFailed = append(r.bodyFailed, body) }
func (r *recordingObserver) TrackingModeChanged(m model.TrackingMode) {
	r.modeChanges = append(r.modeChanges, m)
}
func (r *recordingObserver) FetchOutcome(ok bool) { r.fetches = append(r.fetches, ok) }
func (r *recordingObserver) KeplerSolve(int)      { r.solves++ }
func (r *recordingObserver) AdvisoryEmitted()     { r.advisories++ }

func engineCatalog() *Catalog {
	sun := model.BodyDefinition{
		Name: "Sun", Class: model.BodyClassStar, RadiusKm: 696000,
		Elements: model.OrbitalElements{RotationPeriod: 25.38 * 86400},
	}
	earth := model.BodyDefinition{
		Name: "Earth", Class: model.BodyClassPlanet, Parent: "Sun", RadiusKm: 6371,
		Elements: model.OrbitalElements{
			SemiMajorAxis: 1, Unit: model.UnitAU, Eccentricity: 0.0167,
			Period: 365.256 * 86400, RotationPeriod: 0.997 * 86400, AxialTiltDeg: 23.44,
		},
	}
	moon := model.BodyDefinition{
		Name: "Moon", Class: model.BodyClassMoon, Parent: "Earth", RadiusKm: 1737.4,
		Elements: model.OrbitalElements{
			SemiMajorAxis: 384400, Unit: model.UnitKm, Eccentricity: 0.0549,
			Period: 27.322 * 86400,
		},
	}
	iss := model.BodyDefinition{
		Name: "ISS", Class: model.BodyClassSpacecraft, Parent: "Earth", RadiusKm: 0.05,
		Tracked: true,
		Elements: model.OrbitalElements{
			SemiMajorAxis: 6791, Unit: model.UnitKm, Period: 0.0645 * 86400,
		},
	}
	return &Catalog{
		Bodies:  []model.BodyDefinition{sun, earth, moon, iss},
		Factors: testFactors(),
	}
}

func newTestEngine(t *testing.T, supplier TrackedSupplier, obs EngineObserver) *Engine {
	t.Helper()
	e, err := NewEngine(engineCatalog(), supplier, EngineConfig{
		TrailCapacity: 3,
		InitialRegime: RegimeEnlarged,
	}, nil, obs)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func bodyState(t *testing.T, snap FrameSnapshot, name string) BodyState {
	t.Helper()
	for _, b := range snap.Bodies {
		if b.Name == name {
			return b
		}
	}
	t.Fatalf("body %q missing from frame: %v", name, snap.Bodies)
	return BodyState{}
}

func TestStepComputesFrame(t *testing.T) {
	supplier := &fakeSupplier{pos: Vec3{X: 6791}, mode: model.TrackingLive}
	e := newTestEngine(t, supplier, nil)

	snap := e.Step(1e6)

	if len(snap.Bodies) != 4 {
		t.Fatalf("frame has %d bodies, want 4", len(snap.Bodies))
	}
	if snap.SimSeconds != 1e6 || snap.Regime != RegimeEnlarged {
		t.Fatalf("snapshot header = %v/%v", snap.SimSeconds, snap.Regime)
	}

	sun := bodyState(t, snap, "Sun")
	if sun.DisplayPosition != (Vec3{}) {
		t.Fatalf("star not at origin: %+v", sun.DisplayPosition)
	}
	if sun.RotationAngle == 0 {
		t.Fatal("rotating star should have a nonzero angle at t=1e6")
	}

	earth := bodyState(t, snap, "Earth")
	if earth.DisplayPosition.Norm() == 0 {
		t.Fatal("Earth at origin")
	}

	// The moon is offset from Earth and clear of its display radius.
	moon := bodyState(t, snap, "Moon")
	gap := moon.DisplayPosition.Sub(earth.DisplayPosition).Norm()
	floor := earth.DisplayRadius + e.Converter().Factors(RegimeEnlarged).MoonOrbitMargin
	if gap < floor {
		t.Fatalf("moon gap %v inside parent floor %v", gap, floor)
	}

	if snap.TrackedName != "ISS" || snap.TrackedMode != model.TrackingLive {
		t.Fatalf("tracked = %q/%v, want ISS/live", snap.TrackedName, snap.TrackedMode)
	}
	if supplier.localCnt != 1 {
		t.Fatalf("supplier consulted %d times, want 1", supplier.localCnt)
	}
}

func TestStepDrainsQueuedOutcomesFirst(t *testing.T) {
	supplier := &fakeSupplier{mode: model.TrackingSimulated}
	obs := &recordingObserver{}
	e := newTestEngine(t, supplier, obs)

	e.QueueOutcome(model.FetchOutcome{Seq: 1, Fix: model.PositionFix{Latitude: 10}})
	e.QueueOutcome(model.FetchOutcome{Seq: 2, Err: errTest})
	e.Step(0)

	if len(supplier.applied) != 2 {
		t.Fatalf("applied %d outcomes, want 2", len(supplier.applied))
	}
	if supplier.applied[0].Seq != 1 || supplier.applied[1].Seq != 2 {
		t.Fatalf("outcomes applied out of order: %v", supplier.applied)
	}
	if len(obs.fetches) != 2 || !obs.fetches[0] || obs.fetches[1] {
		t.Fatalf("fetch outcomes observed = %v, want [true false]", obs.fetches)
	}

	// Queue is drained, not reapplied.
	e.Step(1)
	if len(supplier.applied) != 2 {
		t.Fatalf("outcomes reapplied: %d", len(supplier.applied))
	}
}

func TestSetScaleRegimeTakesEffectNextFrame(t *testing.T) {
	supplier := &fakeSupplier{mode: model.TrackingSimulated}
	e := newTestEngine(t, supplier, nil)

	first := e.Step(0)
	if first.Regime != RegimeEnlarged {
		t.Fatalf("initial regime = %v", first.Regime)
	}

	e.SetScaleRegime(RegimeReal)
	second := e.Step(1)
	if second.Regime != RegimeReal {
		t.Fatalf("regime after switch = %v, want real", second.Regime)
	}

	// Earth's display distance shrinks under the different AU factor.
	d1 := bodyState(t, first, "Earth").DisplayPosition.Norm()
	d2 := bodyState(t, second, "Earth").DisplayPosition.Norm()
	if d1 == d2 {
		t.Fatal("regime switch had no effect on display distances")
	}
}

func TestStepIsolatesFailingBody(t *testing.T) {
	supplier := &fakeSupplier{panicOn: true}
	obs := &recordingObserver{}
	e := newTestEngine(t, supplier, obs)

	snap := e.Step(0)

	if _, found := findBody(snap, "ISS"); found {
		t.Fatal("failing tracked body should be dropped from the frame")
	}
	for _, name := range []string{"Sun", "Earth", "Moon"} {
		if _, found := findBody(snap, name); !found {
			t.Fatalf("%s missing: one body's failure leaked into the frame", name)
		}
	}
	if len(obs.bodyFailed) != 1 || obs.bodyFailed[0] != "ISS" {
		t.Fatalf("BodyUpdateFailed = %v, want [ISS]", obs.bodyFailed)
	}
	if obs.frames != 1 {
		t.Fatalf("frame not completed: %d", obs.frames)
	}
}

func findBody(snap FrameSnapshot, name string) (BodyState, bool) {
	for _, b := range snap.Bodies {
		if b.Name == name {
			return b, true
		}
	}
	return BodyState{}, false
}

func TestTrailRecordsTrackedBody(t *testing.T) {
	supplier := &fakeSupplier{pos: Vec3{X: 6791}, mode: model.TrackingLive}
	e := newTestEngine(t, supplier, nil)

	var snap FrameSnapshot
	for i := 0; i < 5; i++ {
		snap = e.Step(float64(i))
	}
	// Capacity 3: the trail holds the last three positions.
	if len(snap.Trail) != 3 {
		t.Fatalf("trail length = %d, want 3", len(snap.Trail))
	}
}

func TestTrailSkipsFailedFrames(t *testing.T) {
	supplier := &fakeSupplier{panicOn: true}
	e := newTestEngine(t, supplier, nil)

	snap := e.Step(0)
	if len(snap.Trail) != 0 {
		t.Fatalf("trail recorded a failed frame: %v", snap.Trail)
	}
}

func TestTrackingModeChangeObservedOnce(t *testing.T) {
	supplier := &fakeSupplier{mode: model.TrackingLive}
	obs := &recordingObserver{}
	e := newTestEngine(t, supplier, obs)

	e.Step(0)
	e.Step(1)
	if len(obs.modeChanges) != 1 {
		t.Fatalf("mode changes = %v, want one initial observation", obs.modeChanges)
	}

	supplier.mode = model.TrackingCached
	e.Step(2)
	if len(obs.modeChanges) != 2 || obs.modeChanges[1] != model.TrackingCached {
		t.Fatalf("mode changes = %v, want [live cached]", obs.modeChanges)
	}
}

func TestFrameSubscriberEvictedAfterRepeatedPanics(t *testing.T) {
	supplier := &fakeSupplier{mode: model.TrackingSimulated}
	e := newTestEngine(t, supplier, nil)

	var calls int
	e.SubscribeFrames(func(FrameSnapshot) {
		calls++
		panic("bad subscriber")
	})
	var healthy int
	e.SubscribeFrames(func(FrameSnapshot) { healthy++ })

	for i := 0; i < 5; i++ {
		e.Step(float64(i))
	}

	if calls != subscriberEvictionThreshold {
		t.Fatalf("panicking subscriber called %d times, want %d", calls, subscriberEvictionThreshold)
	}
	if healthy != 5 {
		t.Fatalf("healthy subscriber called %d times, want 5", healthy)
	}
}

func TestAdvisorySubscriberEvictedAfterRepeatedPanics(t *testing.T) {
	supplier := &fakeSupplier{mode: model.TrackingSimulated}
	obs := &recordingObserver{}
	e := newTestEngine(t, supplier, obs)

	var calls int
	e.SubscribeAdvisories(func(model.TrackingMode, string) {
		calls++
		panic("bad subscriber")
	})

	for i := 0; i < 5; i++ {
		e.PublishAdvisory(model.TrackingSimulated, "fetch failing")
	}

	if calls != subscriberEvictionThreshold {
		t.Fatalf("panicking subscriber called %d times, want %d", calls, subscriberEvictionThreshold)
	}
	if obs.advisories != 5 {
		t.Fatalf("advisories observed = %d, want 5", obs.advisories)
	}
}

func TestLatestReturnsMostRecentFrame(t *testing.T) {
	supplier := &fakeSupplier{mode: model.TrackingSimulated}
	e := newTestEngine(t, supplier, nil)

	e.Step(10)
	e.Step(20)
	if got := e.Latest().SimSeconds; got != 20 {
		t.Fatalf("Latest().SimSeconds = %v, want 20", got)
	}
}

var errTest = errors.New("scripted fetch failure")
