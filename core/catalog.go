// core/catalog.go
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/WinnCook/real-time-iss-visualization-sub001/internal/logging"
	"github.com/WinnCook/real-time-iss-visualization-sub001/model"
)

const secondsPerDay = 86400.0

// Catalog is the static configuration the engine runs on: the body table in
// parents-before-children order plus the regime factor sets. Loaded once at
// startup, never re-derived at runtime.
type Catalog struct {
	Bodies  []model.BodyDefinition
	Factors map[ScaleRegime]RegimeFactors

	// Excluded lists bodies dropped at load time for malformed elements.
	Excluded []string
}

// Body returns the definition with the given name, if present.
func (c *Catalog) Body(name string) (model.BodyDefinition, bool) {
	for _, b := range c.Bodies {
		if b.Name == name {
			return b, true
		}
	}
	return model.BodyDefinition{}, false
}

// internal JSON shapes – kept unexported so we're free to evolve them.
type catalogJSON struct {
	Regimes map[string]regimeJSON `json:"regimes"`
	Bodies  []bodyJSON            `json:"bodies"`
}

type regimeJSON struct {
	DistancePerAU   float64            `json:"distance_per_au"`
	DistancePerKm   float64            `json:"distance_per_km"`
	RadiusPerKm     float64            `json:"radius_per_km"`
	MoonOrbitBoost  float64            `json:"moon_orbit_boost"`
	MoonOrbitMargin float64            `json:"moon_orbit_margin"`
	RadiusBoost     map[string]float64 `json:"radius_boost"`
}

type bodyJSON struct {
	Name     string        `json:"name"`
	Class    string        `json:"class"` // "star" | "planet" | "moon" | "spacecraft"
	Parent   string        `json:"parent"`
	RadiusKm float64       `json:"radius_km"`
	Tracked  bool          `json:"tracked"`
	Elements *elementsJSON `json:"elements"`
	// Rotation for bodies without elements (the central star).
	RotationPeriodDays float64 `json:"rotation_period_days"`
}

type elementsJSON struct {
	SemiMajorAxisAU    float64 `json:"semi_major_axis_au"`
	SemiMajorAxisKm    float64 `json:"semi_major_axis_km"`
	Eccentricity       float64 `json:"eccentricity"`
	InclinationDeg     float64 `json:"inclination_deg"`
	AscendingNodeDeg   float64 `json:"ascending_node_deg"`
	ArgPeriapsisDeg    float64 `json:"arg_periapsis_deg"`
	MeanAnomalyDeg     float64 `json:"mean_anomaly_deg"`
	PeriodDays         float64 `json:"period_days"`
	RotationPeriodDays float64 `json:"rotation_period_days"`
	AxialTiltDeg       float64 `json:"axial_tilt_deg"`
}

// LoadCatalog reads the body catalog and regime factors from r. Structural
// and regime errors are fatal; a malformed body is excluded with a warning so
// one bad entry never takes the whole engine down.
func LoadCatalog(r io.Reader, log logging.Logger) (*Catalog, error) {
	if log == nil {
		log = logging.Noop()
	}

	var payload catalogJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadCatalog: decode failed: %w", err)
	}

	factors, err := factorsFromJSON(payload.Regimes)
	if err != nil {
		return nil, fmt.Errorf("LoadCatalog: %w", err)
	}

	cat := &Catalog{Factors: factors}
	byName := map[string]model.BodyDefinition{}

	var pending []model.BodyDefinition
	for _, js := range payload.Bodies {
		def, err := bodyFromJSON(js)
		if err != nil {
			log.Warn(context.Background(), "excluding malformed catalog body",
				logging.String("body", js.Name),
				logging.String("error", err.Error()),
			)
			cat.Excluded = append(cat.Excluded, js.Name)
			continue
		}
		pending = append(pending, def)
	}

	// Parents before children. Bodies whose parent never materialised are
	// excluded like any other invalid configuration.
	for placed := true; placed && len(pending) > 0; {
		placed = false
		rest := pending[:0]
		for _, def := range pending {
			if def.Parent == "" {
				cat.Bodies = append(cat.Bodies, def)
				byName[def.Name] = def
				placed = true
				continue
			}
			if _, ok := byName[def.Parent]; ok {
				cat.Bodies = append(cat.Bodies, def)
				byName[def.Name] = def
				placed = true
				continue
			}
			rest = append(rest, def)
		}
		pending = rest
	}
	for _, def := range pending {
		log.Warn(context.Background(), "excluding body with unknown parent",
			logging.String("body", def.Name),
			logging.String("parent", def.Parent),
		)
		cat.Excluded = append(cat.Excluded, def.Name)
	}

	if len(cat.Bodies) == 0 {
		return nil, fmt.Errorf("LoadCatalog: no usable bodies in catalog")
	}
	return cat, nil
}

func factorsFromJSON(regimes map[string]regimeJSON) (map[ScaleRegime]RegimeFactors, error) {
	out := map[ScaleRegime]RegimeFactors{}
	for name, js := range regimes {
		regime, err := ParseScaleRegime(name)
		if err != nil {
			return nil, err
		}

		var f RegimeFactors
		if regime == RegimeReal {
			// Single canonical factor: the km factor is derived, never
			// configured separately.
			f = RealFactors(js.DistancePerAU, js.MoonOrbitMargin)
		} else {
			f = RegimeFactors{
				DistancePerAU:   js.DistancePerAU,
				DistancePerKm:   js.DistancePerKm,
				RadiusPerKm:     js.RadiusPerKm,
				MoonOrbitBoost:  js.MoonOrbitBoost,
				MoonOrbitMargin: js.MoonOrbitMargin,
			}
			if f.MoonOrbitBoost == 0 {
				f.MoonOrbitBoost = 1
			}
			if len(js.RadiusBoost) > 0 {
				f.RadiusBoost = map[model.BodyClass]float64{}
				for className, boost := range js.RadiusBoost {
					class, err := parseBodyClass(className)
					if err != nil {
						return nil, err
					}
					f.RadiusBoost[class] = boost
				}
			}
		}
		out[regime] = f
	}
	return out, nil
}

func parseBodyClass(s string) (model.BodyClass, error) {
	switch strings.ToLower(s) {
	case "star":
		return model.BodyClassStar, nil
	case "planet":
		return model.BodyClassPlanet, nil
	case "moon":
		return model.BodyClassMoon, nil
	case "spacecraft":
		return model.BodyClassSpacecraft, nil
	default:
		return 0, fmt.Errorf("unknown body class %q", s)
	}
}

func bodyFromJSON(js bodyJSON) (model.BodyDefinition, error) {
	if js.Name == "" {
		return model.BodyDefinition{}, fmt.Errorf("body with empty name")
	}
	class, err := parseBodyClass(js.Class)
	if err != nil {
		return model.BodyDefinition{}, err
	}
	if js.RadiusKm <= 0 {
		return model.BodyDefinition{}, fmt.Errorf("radius must be positive")
	}

	def := model.BodyDefinition{
		Name:     js.Name,
		Class:    class,
		Parent:   js.Parent,
		RadiusKm: js.RadiusKm,
		Tracked:  js.Tracked,
	}

	if class == model.BodyClassStar {
		def.Elements.RotationPeriod = js.RotationPeriodDays * secondsPerDay
		return def, nil
	}

	if js.Parent == "" {
		return model.BodyDefinition{}, fmt.Errorf("non-star body needs a parent")
	}
	if js.Elements == nil {
		return model.BodyDefinition{}, fmt.Errorf("non-star body needs orbital elements")
	}

	el := js.Elements
	if el.PeriodDays <= 0 {
		return model.BodyDefinition{}, fmt.Errorf("orbital period must be positive: %w", ErrInvalidPeriod)
	}
	if el.Eccentricity < 0 || el.Eccentricity >= 1 {
		return model.BodyDefinition{}, fmt.Errorf("eccentricity %v outside [0,1)", el.Eccentricity)
	}

	var axis float64
	var unit model.DistanceUnit
	switch {
	case el.SemiMajorAxisAU > 0 && el.SemiMajorAxisKm > 0:
		return model.BodyDefinition{}, fmt.Errorf("semi-major axis given in both AU and km")
	case el.SemiMajorAxisAU > 0:
		axis, unit = el.SemiMajorAxisAU, model.UnitAU
	case el.SemiMajorAxisKm > 0:
		axis, unit = el.SemiMajorAxisKm, model.UnitKm
	default:
		return model.BodyDefinition{}, fmt.Errorf("semi-major axis missing")
	}

	deg := math.Pi / 180
	def.Elements = model.OrbitalElements{
		SemiMajorAxis:  axis,
		Unit:           unit,
		Eccentricity:   el.Eccentricity,
		Inclination:    el.InclinationDeg * deg,
		AscendingNode:  el.AscendingNodeDeg * deg,
		ArgPeriapsis:   el.ArgPeriapsisDeg * deg,
		MeanAnomaly0:   el.MeanAnomalyDeg * deg,
		Period:         el.PeriodDays * secondsPerDay,
		RotationPeriod: el.RotationPeriodDays * secondsPerDay,
		AxialTiltDeg:   el.AxialTiltDeg,
	}
	return def, nil
}
