package location

import (
	"math"
	"strings"
	"testing"

	"otengine/models"
)

var headOffice = models.OfficeLocation{ID: 1, Name: "Head Office", Latitude: 10.000, Longitude: 78.000, Radius: 100, Active: true}

// north returns the latitude that lies meters due north of lat.
func north(lat, meters float64) float64 {
	return lat + meters/earthRadiusMeters*180/math.Pi
}

func TestDistance(t *testing.T) {
	if d := Distance(10, 78, 10, 78); d != 0 {
		t.Fatalf("expected zero distance, got %v", d)
	}
	d := Distance(10, 78, north(10, 95), 78)
	if math.Abs(d-95) > 0.01 {
		t.Fatalf("expected ~95m, got %v", d)
	}
	// Chennai to Madurai is roughly 425 km.
	d = Distance(13.0827, 80.2707, 9.9252, 78.1198)
	if d < 410000 || d > 440000 {
		t.Fatalf("unexpected Chennai-Madurai distance %v", d)
	}
}

func TestValidateTiers(t *testing.T) {
	cases := []struct {
		name      string
		meters    float64
		accuracy  float64
		device    DeviceCapability
		wantValid bool
		wantType  ValidationType
		minConf   float64
	}{
		{name: "exact", meters: 95, accuracy: 8, device: DeviceExcellent, wantValid: true, wantType: TypeExact, minConf: 0.9},
		{name: "mobile extension", meters: 140, accuracy: 8, device: DeviceExcellent, wantValid: true, wantType: TypeDeviceExtended, minConf: 0.8},
		{name: "mobile extension is strict", meters: 180, accuracy: 8, device: DeviceExcellent, wantValid: false, wantType: TypeFailed},
		{name: "desktop extension is loose", meters: 350, accuracy: 8, device: DevicePoor, wantValid: true, wantType: TypeDeviceExtended, minConf: 0.6},
		{name: "indoor compensation", meters: 1200, accuracy: 300, device: DeviceExcellent, wantValid: true, wantType: TypeIndoor, minConf: 0.65},
		{name: "indoor beyond multiplier", meters: 1900, accuracy: 450, device: DeviceExcellent, wantValid: false, wantType: TypeFailed},
		{name: "poor gps", meters: 250, accuracy: 60, device: DeviceExcellent, wantValid: true, wantType: TypePoorGPS, minConf: 0.55},
		{name: "very poor gps", meters: 450, accuracy: 80, device: DeviceExcellent, wantValid: true, wantType: TypeVeryPoorGPS, minConf: 0.45},
		{name: "close proximity", meters: 130, accuracy: 10, device: "", wantValid: true, wantType: TypeCloseProximity, minConf: 0.4},
		{name: "far with good accuracy", meters: 400, accuracy: 10, device: DeviceGood, wantValid: false, wantType: TypeFailed},
	}

	v := NewValidator(DefaultConfig(), headOffice)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Validate(north(10, tc.meters), 78, tc.accuracy, tc.device)
			if res.IsValid != tc.wantValid {
				t.Fatalf("IsValid = %v, want %v (%+v)", res.IsValid, tc.wantValid, res)
			}
			if res.ValidationType != tc.wantType {
				t.Fatalf("ValidationType = %s, want %s", res.ValidationType, tc.wantType)
			}
			if tc.wantValid && res.Confidence < tc.minConf {
				t.Fatalf("Confidence = %v, want >= %v", res.Confidence, tc.minConf)
			}
			if res.Confidence < 0 || res.Confidence > 1 {
				t.Fatalf("confidence out of range: %v", res.Confidence)
			}
		})
	}
}

func TestDeviceExtensionShadowsLaterTiers(t *testing.T) {
	v := NewValidator(DefaultConfig(), headOffice)
	cases := []struct {
		name     string
		meters   float64
		accuracy float64
		device   DeviceCapability
		want     ValidationType
	}{
		{name: "limited device inside poor gps radius", meters: 250, accuracy: 60, device: DeviceLimited, want: TypeDeviceExtended},
		{name: "poor device inside poor gps radius", meters: 250, accuracy: 60, device: DevicePoor, want: TypeDeviceExtended},
		{name: "excellent device inside close proximity", meters: 130, accuracy: 10, device: DeviceExcellent, want: TypeDeviceExtended},
		{name: "good device inside close proximity", meters: 130, accuracy: 10, device: DeviceGood, want: TypeDeviceExtended},
		{name: "unknown device inside close proximity", meters: 130, accuracy: 10, device: "kiosk", want: TypeCloseProximity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Validate(north(10, tc.meters), 78, tc.accuracy, tc.device)
			if !res.IsValid || res.ValidationType != tc.want {
				t.Fatalf("got %s (valid=%v), want %s", res.ValidationType, res.IsValid, tc.want)
			}
		})
	}
}

func TestIndoorMultiplierDecidesFarPoorFix(t *testing.T) {
	lat := north(10, 1900)

	strict := NewValidator(DefaultConfig(), headOffice)
	if res := strict.Validate(lat, 78, 450, DeviceExcellent); res.IsValid {
		t.Fatalf("1900m must fail with multiplier 15, got %+v", res)
	}

	cfg := DefaultConfig()
	cfg.IndoorMultiplier = 20
	loose := NewValidator(cfg, headOffice)
	res := loose.Validate(lat, 78, 450, DeviceExcellent)
	if !res.IsValid || res.ValidationType != TypeIndoor {
		t.Fatalf("1900m must pass as indoor with multiplier 20, got %+v", res)
	}
	if res.EffectiveRadius != 2000 {
		t.Fatalf("EffectiveRadius = %v", res.EffectiveRadius)
	}
	if !res.Factors.IndoorSuspected {
		t.Fatalf("expected indoor factor to be flagged")
	}
}

func TestValidatePicksBestOffice(t *testing.T) {
	branch := models.OfficeLocation{ID: 2, Name: "Branch", Latitude: north(10, 190), Longitude: 78, Radius: 200, Active: true}
	v := NewValidator(DefaultConfig(), headOffice, branch)

	// 140m from head office (extended tier), 50m from the branch (exact).
	res := v.Validate(north(10, 140), 78, 5, DeviceExcellent)
	if !res.IsValid || res.OfficeID != branch.ID || res.ValidationType != TypeExact {
		t.Fatalf("expected exact match at branch, got %+v", res)
	}
}

func TestValidateFailureMessage(t *testing.T) {
	v := NewValidator(DefaultConfig(), headOffice)
	res := v.Validate(north(10, 900), 78, 12, DeviceLimited)
	if res.IsValid {
		t.Fatalf("expected failure, got %+v", res)
	}
	if !strings.Contains(res.Message, "900m") || !strings.Contains(res.Message, "300m") {
		t.Fatalf("message should state distance and limit: %q", res.Message)
	}
	if len(res.Recommendations) < 2 {
		t.Fatalf("expected remediation hints, got %v", res.Recommendations)
	}
}

func TestValidateInvalidInput(t *testing.T) {
	v := NewValidator(DefaultConfig(), headOffice)
	if res := v.Validate(123, 78, 5, DeviceExcellent); res.IsValid || res.ValidationType != TypeInvalidInput {
		t.Fatalf("expected invalid input, got %+v", res)
	}
	if res := v.Validate(10, 78, -1, DeviceExcellent); res.ValidationType != TypeInvalidInput {
		t.Fatalf("negative accuracy must be rejected, got %+v", res)
	}

	empty := NewValidator(DefaultConfig(), models.OfficeLocation{Name: "disabled", Radius: 100})
	if res := empty.Validate(10, 78, 5, DeviceExcellent); res.ValidationType != TypeNoOffices {
		t.Fatalf("inactive offices must be ignored, got %+v", res)
	}
}
