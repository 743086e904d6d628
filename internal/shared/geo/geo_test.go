package geo

import "testing"

func TestHaversineKm(t *testing.T) {
	// Paris (48.8566, 2.3522) to Lyon (45.7640, 4.8357) ~ 390-400 km
	d := HaversineKm(48.8566, 2.3522, 45.7640, 4.8357)
	if d < 380 || d > 410 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestHaversineKm_Zero(t *testing.T) {
	if d := HaversineKm(48.8566, 2.3522, 48.8566, 2.3522); d != 0 {
		t.Fatalf("distance to self should be 0, got %v", d)
	}
}
