// Package location decides whether a reported GPS fix is inside one of the
// configured office geofences.
//
// A single hard radius rejects too many honest check-ins: indoor fixes and
// desktop browsers routinely report positions hundreds of meters off. The
// validator instead walks an ordered list of tiers, each with a lower
// confidence than the last, and returns the best match across all offices.
package location

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"otengine/models"
)

type DeviceCapability string

const (
	DeviceExcellent DeviceCapability = "excellent"
	DeviceGood      DeviceCapability = "good"
	DeviceLimited   DeviceCapability = "limited"
	DevicePoor      DeviceCapability = "poor"
)

type ValidationType string

const (
	TypeExact          ValidationType = "exact"
	TypeDeviceExtended ValidationType = "device_extended"
	TypeIndoor         ValidationType = "indoor_compensation"
	TypePoorGPS        ValidationType = "poor_gps_compensation"
	TypeVeryPoorGPS    ValidationType = "very_poor_gps_compensation"
	TypeCloseProximity ValidationType = "close_proximity"
	TypeFailed         ValidationType = "failed"
	TypeInvalidInput   ValidationType = "invalid_input"
	TypeNoOffices      ValidationType = "no_offices_configured"
)

// deviceProfile scales confidence and the extended radius by hardware class.
// Mobile GPS (excellent) gets the tightest extension, desktops the loosest.
type deviceProfile struct {
	confidence       float64
	radiusMultiplier float64
}

var deviceProfiles = map[DeviceCapability]deviceProfile{
	DeviceExcellent: {confidence: 1.0, radiusMultiplier: 1.5},
	DeviceGood:      {confidence: 0.95, radiusMultiplier: 2.0},
	DeviceLimited:   {confidence: 0.85, radiusMultiplier: 3.0},
	DevicePoor:      {confidence: 0.75, radiusMultiplier: 4.0},
}

// unknown capabilities get no radius extension
var unknownDevice = deviceProfile{confidence: 0.8, radiusMultiplier: 1.0}

func profileFor(c DeviceCapability) deviceProfile {
	if p, ok := deviceProfiles[c]; ok {
		return p
	}
	return unknownDevice
}

// Config holds the tier thresholds. Accuracies and distances are meters.
type Config struct {
	IndoorAccuracyThreshold   float64
	IndoorMultiplier          float64
	PoorAccuracyThreshold     float64
	PoorMultiplier            float64
	VeryPoorAccuracyThreshold float64
	VeryPoorMultiplier        float64
	GoodAccuracyThreshold     float64
	CloseProximityMultiplier  float64
}

func DefaultConfig() Config {
	return Config{
		IndoorAccuracyThreshold:   100,
		IndoorMultiplier:          15,
		PoorAccuracyThreshold:     50,
		PoorMultiplier:            3,
		VeryPoorAccuracyThreshold: 75,
		VeryPoorMultiplier:        5,
		GoodAccuracyThreshold:     50,
		CloseProximityMultiplier:  1.5,
	}
}

const (
	confidenceExact          = 0.95
	confidenceDeviceExtended = 0.85
	confidenceIndoor         = 0.70
	confidencePoorGPS        = 0.60
	confidenceVeryPoorGPS    = 0.50
	confidenceCloseProximity = 0.55
)

type Factors struct {
	AccuracyMeters   float64          `json:"accuracy_meters"`
	DeviceCapability DeviceCapability `json:"device_capability"`
	DeviceMultiplier float64          `json:"device_multiplier"`
	RadiusMultiplier float64          `json:"radius_multiplier"`
	DistanceRatio    float64          `json:"distance_ratio"`
	IndoorSuspected  bool             `json:"indoor_suspected"`
}

type Result struct {
	IsValid         bool           `json:"is_valid"`
	Confidence      float64        `json:"confidence"`
	Distance        float64        `json:"distance"`
	ValidationType  ValidationType `json:"validation_type"`
	EffectiveRadius float64        `json:"effective_radius"`
	OfficeID        uint           `json:"office_id,omitempty"`
	OfficeName      string         `json:"office_name,omitempty"`
	Message         string         `json:"message"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Factors         Factors        `json:"factors"`
}

type Validator struct {
	cfg Config

	mu      sync.RWMutex
	offices []models.OfficeLocation
}

func NewValidator(cfg Config, offices ...models.OfficeLocation) *Validator {
	v := &Validator{cfg: cfg}
	v.SetOffices(offices)
	return v
}

// SetOffices replaces the geofence list. Inactive offices are ignored.
func (v *Validator) SetOffices(offices []models.OfficeLocation) {
	active := make([]models.OfficeLocation, 0, len(offices))
	for _, o := range offices {
		if o.Active && o.Radius > 0 {
			active = append(active, o)
		}
	}
	v.mu.Lock()
	v.offices = active
	v.mu.Unlock()
}

func (v *Validator) Offices() []models.OfficeLocation {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.OfficeLocation, len(v.offices))
	copy(out, v.offices)
	return out
}

// Validate classifies the position against every office and returns the
// highest-confidence valid match, or a failure for the nearest office.
func (v *Validator) Validate(lat, lon, accuracy float64, device DeviceCapability) Result {
	if !validCoordinate(lat, lon) || math.IsNaN(accuracy) || accuracy < 0 {
		return Result{
			ValidationType:  TypeInvalidInput,
			Message:         "location required: the reported coordinates are missing or invalid",
			Recommendations: []string{"Allow location access and retry once a GPS fix is available"},
		}
	}

	offices := v.Offices()
	if len(offices) == 0 {
		return Result{
			ValidationType: TypeNoOffices,
			Message:        "no office locations are configured",
		}
	}

	results := make([]Result, 0, len(offices))
	for _, office := range offices {
		results = append(results, v.classify(office, lat, lon, accuracy, device))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].IsValid != results[j].IsValid {
			return results[i].IsValid
		}
		if results[i].IsValid && results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].Distance < results[j].Distance
	})
	return results[0]
}

func (v *Validator) classify(office models.OfficeLocation, lat, lon, accuracy float64, device DeviceCapability) Result {
	profile := profileFor(device)
	distance := Distance(lat, lon, office.Latitude, office.Longitude)
	radius := office.Radius

	res := Result{
		Distance:   math.Round(distance*10) / 10,
		OfficeID:   office.ID,
		OfficeName: office.Name,
		Factors: Factors{
			AccuracyMeters:   accuracy,
			DeviceCapability: device,
			DeviceMultiplier: profile.confidence,
			RadiusMultiplier: profile.radiusMultiplier,
			DistanceRatio:    math.Round(distance/radius*100) / 100,
			IndoorSuspected:  accuracy >= v.cfg.IndoorAccuracyThreshold,
		},
	}

	match := func(t ValidationType, base, effective float64) Result {
		res.IsValid = true
		res.ValidationType = t
		res.Confidence = math.Round(base*profile.confidence*100) / 100
		res.EffectiveRadius = effective
		res.Message = fmt.Sprintf("location verified at %s (%.0fm, %s)", office.Name, distance, t)
		return res
	}

	// Tiers are ordered. Every known device profile extends the radius by at
	// least CloseProximityMultiplier, so close proximity only matches unknown
	// devices, and limited/poor devices reach the poor-GPS radius through
	// their own extension first.
	switch extended, indoor := radius*profile.radiusMultiplier, radius*v.cfg.IndoorMultiplier; {
	case distance <= radius:
		return match(TypeExact, confidenceExact, radius)
	case distance <= extended:
		return match(TypeDeviceExtended, confidenceDeviceExtended, extended)
	case accuracy >= v.cfg.IndoorAccuracyThreshold && distance <= indoor:
		return match(TypeIndoor, confidenceIndoor, indoor)
	case accuracy >= v.cfg.PoorAccuracyThreshold && distance <= radius*v.cfg.PoorMultiplier:
		return match(TypePoorGPS, confidencePoorGPS, radius*v.cfg.PoorMultiplier)
	case accuracy >= v.cfg.VeryPoorAccuracyThreshold && distance <= radius*v.cfg.VeryPoorMultiplier:
		return match(TypeVeryPoorGPS, confidenceVeryPoorGPS, radius*v.cfg.VeryPoorMultiplier)
	case accuracy <= v.cfg.GoodAccuracyThreshold && distance <= radius*v.cfg.CloseProximityMultiplier:
		return match(TypeCloseProximity, confidenceCloseProximity, radius*v.cfg.CloseProximityMultiplier)
	}

	limit := radius * profile.radiusMultiplier
	res.ValidationType = TypeFailed
	res.EffectiveRadius = limit
	res.Message = fmt.Sprintf("you are %.0fm from %s; the allowed distance is %.0fm", distance, office.Name, limit)
	res.Recommendations = recommendations(distance, limit, accuracy, device, v.cfg)
	return res
}

func recommendations(distance, limit, accuracy float64, device DeviceCapability, cfg Config) []string {
	var out []string
	out = append(out, fmt.Sprintf("Move about %.0fm closer to the office and retry", distance-limit))
	if accuracy >= cfg.PoorAccuracyThreshold {
		out = append(out, "GPS accuracy is low: step near a window or outside for a better fix")
	}
	if device == DeviceLimited || device == DevicePoor {
		out = append(out, "Check in from a mobile device with GPS enabled")
	}
	out = append(out, "Enable high-accuracy location mode in your device settings")
	return out
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
