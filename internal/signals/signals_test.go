package signals

import (
	"math"
	"testing"

	"github.com/mbd888/fraudguard/internal/fingerprint"
)

func humanPayload() fingerprint.Payload {
	return fingerprint.Payload{
		CanvasHash:          "c4nv4s",
		WebGLHash:           "w3bgl",
		AudioHash:           "aud10",
		ScreenResolution:    "1920x1080",
		HardwareConcurrency: 8,
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Plugins:             []string{"PDF Viewer", "Chrome PDF Viewer"},
		InteractionEvents:   42,
		SessionDurationMs:   30000,
		WebGLVendor:         "Google Inc.",
		WebGLRenderer:       "ANGLE (NVIDIA GeForce GTX 1080)",
	}
}

func TestBotDetectorCleanPayload(t *testing.T) {
	r := NewBotDetector().Detect(humanPayload())
	if r.Flagged {
		t.Errorf("clean payload flagged as bot: score=%d signals=%+v", r.Score, r.Signals)
	}
	if r.Score != 0 {
		t.Errorf("clean payload score = %d, want 0", r.Score)
	}
}

func TestBotDetectorHeadlessScenario(t *testing.T) {
	// Bot UA, no canvas/webgl/audio, zero hardware concurrency. Plugins
	// and interactions present so only those five signals contribute.
	p := humanPayload()
	p.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/119.0.0.0"
	p.CanvasHash = ""
	p.WebGLHash = ""
	p.AudioHash = ""
	p.HardwareConcurrency = 0

	r := NewBotDetector().Detect(p)
	if !r.Flagged {
		t.Fatal("headless scenario not flagged")
	}
	if r.Score != 90 {
		t.Errorf("score = %d, want 90 (30+15+15+10+20)", r.Score)
	}
	if math.Abs(r.Confidence-0.9) > 1e-9 {
		t.Errorf("confidence = %v, want 0.9", r.Confidence)
	}
	if len(r.Signals) != 5 {
		t.Errorf("got %d signals, want 5: %+v", len(r.Signals), r.Signals)
	}
}

func TestBotDetectorThresholdBoundary(t *testing.T) {
	// Webdriver alone scores 40, below the threshold.
	p := humanPayload()
	p.Webdriver = true
	if r := NewBotDetector().Detect(p); r.Flagged {
		t.Errorf("webdriver alone flagged at score %d", r.Score)
	}

	// Adding an empty plugin list reaches exactly 50.
	p.Plugins = nil
	r := NewBotDetector().Detect(p)
	if !r.Flagged {
		t.Errorf("score %d at threshold not flagged", r.Score)
	}
	if r.Score != 50 {
		t.Errorf("score = %d, want 50", r.Score)
	}
}

func TestBotDetectorFrameworkUA(t *testing.T) {
	p := humanPayload()
	p.UserAgent = "Mozilla/5.0 selenium/4.15"
	r := NewBotDetector().Detect(p)
	if !r.Flagged {
		t.Errorf("selenium UA not flagged, score=%d", r.Score)
	}
}

func TestBotDetectorConfidenceCapped(t *testing.T) {
	r := NewBotDetector().Detect(fingerprint.Payload{
		UserAgent:         "phantomjs selenium nightmare bot",
		Webdriver:         true,
		Automation:        true,
		SessionDurationMs: 10000,
	})
	if r.Confidence != 1.0 {
		t.Errorf("confidence = %v, want capped at 1.0 (score=%d)", r.Confidence, r.Score)
	}
}

func androidPayload() fingerprint.Payload {
	p := humanPayload()
	p.UserAgent = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.43 Mobile Safari/537.36"
	p.DeclaredPlatform = "android"
	p.DeviceModel = "Pixel 8"
	p.MaxTouchPoints = 5
	p.WebGLVendor = "Qualcomm"
	p.WebGLRenderer = "Adreno (TM) 740"
	return p
}

func TestEmulatorDetectorCleanPhone(t *testing.T) {
	r := NewEmulatorDetector().Detect(androidPayload())
	if r.Flagged || r.Score != 0 {
		t.Errorf("real phone scored %d: %+v", r.Score, r.Signals)
	}
}

func TestEmulatorDetectorSelfReportedFlag(t *testing.T) {
	p := androidPayload()
	p.EmulatorFlag = true
	r := NewEmulatorDetector().Detect(p)
	if !r.Flagged {
		t.Errorf("self-reported emulator not flagged, score=%d", r.Score)
	}
	if r.Score != 50 {
		t.Errorf("score = %d, want 50", r.Score)
	}
}

func TestEmulatorDetectorVirtualImage(t *testing.T) {
	p := androidPayload()
	p.DeviceModel = "sdk_gphone64_x86_64"
	p.WebGLRenderer = "Google SwiftShader"
	r := NewEmulatorDetector().Detect(p)
	if !r.Flagged {
		t.Fatal("emulator image not flagged")
	}
	if r.Score != 75 {
		t.Errorf("score = %d, want 75 (40+35)", r.Score)
	}
}

func TestEmulatorDetectorMobileHeuristics(t *testing.T) {
	// Touchless mobile with no model: 25+20 stays below the threshold.
	p := androidPayload()
	p.DeviceModel = ""
	p.MaxTouchPoints = 0
	r := NewEmulatorDetector().Detect(p)
	if r.Flagged {
		t.Errorf("weak heuristics alone flagged, score=%d", r.Score)
	}
	if r.Score != 45 {
		t.Errorf("score = %d, want 45 (25+20)", r.Score)
	}

	// Root detection tips it over.
	p.Rooted = true
	if r := NewEmulatorDetector().Detect(p); !r.Flagged {
		t.Errorf("rooted touchless mobile not flagged, score=%d", r.Score)
	}
}

func TestEmulatorDetectorDesktopUnaffected(t *testing.T) {
	// Desktop payloads never trip the mobile-only heuristics.
	p := humanPayload()
	p.MaxTouchPoints = 0
	p.DeviceModel = ""
	r := NewEmulatorDetector().Detect(p)
	if r.Score != 0 {
		t.Errorf("desktop payload scored %d: %+v", r.Score, r.Signals)
	}
}
