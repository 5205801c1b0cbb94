package takeover

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mbd888/fraudguard/internal/device"
	"github.com/mbd888/fraudguard/internal/geo"
)

var (
	london = geo.Point{Lat: 51.5074, Lon: -0.1278}
	paris  = geo.Point{Lat: 48.8566, Lon: 2.3522}
	sydney = geo.Point{Lat: -33.8688, Lon: 151.2093}
)

type fakeSink struct {
	incidents []*device.Incident
}

func (f *fakeSink) RaiseIncident(_ context.Context, hash, userID, incidentType string, severity device.RiskLevel, evidence map[string]any) (*device.Incident, error) {
	inc := &device.Incident{
		FingerprintHash: hash, UserID: userID, Type: incidentType,
		Severity: severity, Evidence: evidence,
	}
	f.incidents = append(f.incidents, inc)
	return inc, nil
}

func seedHistory(t *testing.T, h History, attempts []Attempt) {
	t.Helper()
	for _, a := range attempts {
		if err := h.Append(context.Background(), a); err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}
}

func at(base time.Time, offset time.Duration) time.Time { return base.Add(offset) }

func TestDetectFirstLoginRequiresMFA(t *testing.T) {
	d := NewDetector(NewMemoryHistory(), nil)

	v, err := d.Detect(context.Background(), Attempt{
		UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1",
		Timestamp: time.Now(), Success: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	// No history: the device and IP are both unfamiliar.
	if v.ThreatScore != 40 {
		t.Errorf("score = %d, want 40 (25+15)", v.ThreatScore)
	}
	if v.Action != ActionMFARequired {
		t.Errorf("action = %s, want %s", v.Action, ActionMFARequired)
	}
}

func TestDetectFamiliarLoginAllows(t *testing.T) {
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	h := NewMemoryHistory()
	seedHistory(t, h, []Attempt{
		{UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1", Timestamp: at(base, -48 * time.Hour), Success: true},
		{UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1", Timestamp: at(base, -24 * time.Hour), Success: true},
	})

	v, err := NewDetector(h, nil).Detect(context.Background(), Attempt{
		UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1",
		Timestamp: base, Success: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.ThreatScore != 0 {
		t.Errorf("score = %d, want 0: %+v", v.ThreatScore, v.Signals)
	}
	if v.Action != ActionAllow {
		t.Errorf("action = %s, want %s", v.Action, ActionAllow)
	}

	// The attempt itself lands in the history.
	list, err := h.List(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Errorf("history length = %d, want 3", len(list))
	}
}

func TestDetectImpossibleTravel(t *testing.T) {
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	h := NewMemoryHistory()
	loc := london
	seedHistory(t, h, []Attempt{
		{UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1", Location: &loc, Timestamp: at(base, -24*time.Hour - 10*time.Minute), Success: true},
		{UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1", Timestamp: at(base, -24 * time.Hour), Success: true},
	})

	far := sydney
	v, err := NewDetector(h, nil).Detect(context.Background(), Attempt{
		UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1",
		Location: &far, Timestamp: at(base, -24*time.Hour+10*time.Minute), Success: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.ThreatScore != 50 {
		t.Errorf("score = %d, want 50: %+v", v.ThreatScore, v.Signals)
	}
	if v.Action != ActionChallenge {
		t.Errorf("action = %s, want %s", v.Action, ActionChallenge)
	}
}

func TestDetectPlausibleTravelIsClean(t *testing.T) {
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	h := NewMemoryHistory()
	loc := london
	seedHistory(t, h, []Attempt{
		{UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1", Location: &loc, Timestamp: at(base, -29 * time.Hour), Success: true},
		{UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1", Timestamp: at(base, -24 * time.Hour), Success: true},
	})

	// London to Paris in five hours is well under 900 km/h.
	dest := paris
	v, err := NewDetector(h, nil).Detect(context.Background(), Attempt{
		UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1",
		Location: &dest, Timestamp: at(base, -24 * time.Hour), Success: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range v.Signals {
		if s.Type == "impossible_travel" {
			t.Errorf("plausible travel flagged: %+v", s)
		}
	}
}

func TestDetectFailedVelocity(t *testing.T) {
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	h := NewMemoryHistory()
	seedHistory(t, h, []Attempt{
		{UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1", Timestamp: at(base, 5 * time.Minute), Success: false},
		{UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1", Timestamp: at(base, 10 * time.Minute), Success: false},
		{UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1", Timestamp: at(base, 15 * time.Minute), Success: false},
	})

	v, err := NewDetector(h, nil).Detect(context.Background(), Attempt{
		UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1",
		Timestamp: at(base, 30 * time.Minute), Success: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.ThreatScore != 35 {
		t.Errorf("score = %d, want 35: %+v", v.ThreatScore, v.Signals)
	}
	if v.Action != ActionMFARequired {
		t.Errorf("action = %s, want %s", v.Action, ActionMFARequired)
	}
}

func TestDetectCredentialStuffingBlocksAndRaisesIncident(t *testing.T) {
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	h := NewMemoryHistory()
	var history []Attempt
	for i := 0; i < 4; i++ {
		history = append(history, Attempt{
			UserID: "u1", IPAddress: fmt.Sprintf("10.0.0.%d", i), FingerprintHash: "dev1",
			Timestamp: at(base, time.Duration(i+1) * time.Minute), Success: false,
		})
	}
	seedHistory(t, h, history)

	sink := &fakeSink{}
	v, err := NewDetector(h, sink).Detect(context.Background(), Attempt{
		UserID: "u1", IPAddress: "10.0.0.99", FingerprintHash: "dev1",
		Timestamp: at(base, 5 * time.Minute), Success: false,
	})
	if err != nil {
		t.Fatal(err)
	}
	// Stuffing (60), unfamiliar IP (15), failed velocity (35).
	if v.ThreatScore < BlockThreshold {
		t.Errorf("score = %d, want >= %d", v.ThreatScore, BlockThreshold)
	}
	if v.Action != ActionBlock {
		t.Errorf("action = %s, want %s", v.Action, ActionBlock)
	}

	if len(sink.incidents) != 1 {
		t.Fatalf("incidents = %d, want 1", len(sink.incidents))
	}
	inc := sink.incidents[0]
	if inc.Type != device.IncidentCredentialStuffing {
		t.Errorf("incident type = %s, want %s", inc.Type, device.IncidentCredentialStuffing)
	}
	if inc.Severity != device.RiskCritical {
		t.Errorf("incident severity = %s, want critical", inc.Severity)
	}
}

func TestDetectUnusualHour(t *testing.T) {
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	h := NewMemoryHistory()
	seedHistory(t, h, []Attempt{
		{UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1", Timestamp: at(base, -72 * time.Hour), Success: true},
		{UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1", Timestamp: at(base, -48 * time.Hour), Success: true},
	})

	// Three in the morning, against a 9am pattern.
	v, err := NewDetector(h, nil).Detect(context.Background(), Attempt{
		UserID: "u1", IPAddress: "1.1.1.1", FingerprintHash: "dev1",
		Timestamp: time.Date(2026, 1, 16, 3, 0, 0, 0, time.UTC), Success: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.ThreatScore != 10 {
		t.Errorf("score = %d, want 10: %+v", v.ThreatScore, v.Signals)
	}
	if v.Action != ActionAllow {
		t.Errorf("action = %s, want %s", v.Action, ActionAllow)
	}
}

func TestMemoryHistoryRingCap(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	for i := 0; i < HistoryCap+50; i++ {
		err := h.Append(ctx, Attempt{
			UserID: "u1", IPAddress: "1.1.1.1",
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	list, err := h.List(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != HistoryCap {
		t.Errorf("history length = %d, want %d", len(list), HistoryCap)
	}
	if !list[0].Timestamp.Before(list[len(list)-1].Timestamp) {
		t.Error("history not in chronological order")
	}
}
