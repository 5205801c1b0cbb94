package fingerprint

import "testing"

func basePayload() Payload {
	return Payload{
		CanvasHash:          "c4nv4s",
		WebGLHash:           "w3bgl",
		AudioHash:           "aud10",
		Fonts:               []string{"Arial", "Helvetica", "Times New Roman"},
		ScreenResolution:    "1920x1080",
		ColorDepth:          24,
		Timezone:            "Europe/Berlin",
		Language:            "de-DE",
		Platform:            "Win32",
		HardwareConcurrency: 8,
		WebGLVendor:         "Google Inc.",
		WebGLRenderer:       "ANGLE (NVIDIA GeForce GTX 1080)",
	}
}

func TestHashDeterministic(t *testing.T) {
	a := Hash(basePayload())
	b := Hash(basePayload())
	if a != b {
		t.Errorf("same payload produced different hashes: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestHashIgnoresFontOrder(t *testing.T) {
	p := basePayload()
	q := basePayload()
	q.Fonts = []string{"Times New Roman", "Arial", "Helvetica"}
	if Hash(p) != Hash(q) {
		t.Error("font ordering changed the hash")
	}
}

func TestHashChangesPerComponent(t *testing.T) {
	base := Hash(basePayload())

	mutations := map[string]func(*Payload){
		"canvas":      func(p *Payload) { p.CanvasHash = "other" },
		"webgl":       func(p *Payload) { p.WebGLHash = "other" },
		"audio":       func(p *Payload) { p.AudioHash = "other" },
		"fonts":       func(p *Payload) { p.Fonts = append(p.Fonts, "Comic Sans MS") },
		"resolution":  func(p *Payload) { p.ScreenResolution = "2560x1440" },
		"color depth": func(p *Payload) { p.ColorDepth = 30 },
		"timezone":    func(p *Payload) { p.Timezone = "America/New_York" },
		"language":    func(p *Payload) { p.Language = "en-US" },
		"platform":    func(p *Payload) { p.Platform = "MacIntel" },
		"concurrency": func(p *Payload) { p.HardwareConcurrency = 4 },
		"gl vendor":   func(p *Payload) { p.WebGLVendor = "Apple" },
		"gl renderer": func(p *Payload) { p.WebGLRenderer = "Apple M1" },
	}

	for name, mutate := range mutations {
		p := basePayload()
		mutate(&p)
		if Hash(p) == base {
			t.Errorf("changing %s did not change the hash", name)
		}
	}
}

func TestHashStableAcrossPartialPayloads(t *testing.T) {
	// A payload with only detection evidence set hashes the same as a
	// fully-empty one: evidence fields are not hash inputs.
	evidenceOnly := Payload{
		UserAgent:         "Mozilla/5.0",
		Webdriver:         true,
		Plugins:           []string{"pdf"},
		InteractionEvents: 12,
	}
	if Hash(evidenceOnly) != Hash(Payload{}) {
		t.Error("detection evidence leaked into the hash")
	}
}

func TestParseUserAgentTable(t *testing.T) {
	tests := []struct {
		name     string
		ua       string
		declared string
		want     Profile
	}{
		{
			name: "chrome on windows",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.71 Safari/537.36",
			want: Profile{Platform: PlatformWeb, BrowserFamily: "Chrome", BrowserVersion: "120.0.6099.71", OSFamily: "Windows", OSVersion: "10.0", DeviceType: DeviceDesktop},
		},
		{
			name: "edge precedes chrome",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.61",
			want: Profile{Platform: PlatformWeb, BrowserFamily: "Edge", BrowserVersion: "120.0.2210.61", OSFamily: "Windows", OSVersion: "10.0", DeviceType: DeviceDesktop},
		},
		{
			name: "safari on iphone",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			want: Profile{Platform: PlatformIOS, BrowserFamily: "Safari", BrowserVersion: "17.1", OSFamily: "iOS", OSVersion: "17.1", DeviceType: DeviceMobile},
		},
		{
			name: "chrome on android phone",
			ua:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.43 Mobile Safari/537.36",
			want: Profile{Platform: PlatformAndroid, BrowserFamily: "Chrome", BrowserVersion: "120.0.6099.43", OSFamily: "Android", OSVersion: "14", DeviceType: DeviceMobile},
		},
		{
			name: "firefox on linux",
			ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want: Profile{Platform: PlatformWeb, BrowserFamily: "Firefox", BrowserVersion: "121.0", OSFamily: "Linux", DeviceType: DeviceDesktop},
		},
		{
			name: "ipad is a tablet",
			ua:   "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
			want: Profile{Platform: PlatformIOS, BrowserFamily: "Safari", BrowserVersion: "16.6", OSFamily: "iOS", OSVersion: "16.6", DeviceType: DeviceTablet},
		},
		{
			name:     "declared platform wins",
			ua:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36",
			declared: "ios",
			want:     Profile{Platform: PlatformIOS, BrowserFamily: "Chrome", BrowserVersion: "120.0.0.0", OSFamily: "Windows", OSVersion: "10.0", DeviceType: DeviceDesktop},
		},
		{
			name: "case insensitive matching",
			ua:   "MOZILLA/5.0 (WINDOWS NT 10.0) CHROME/99.0.1 SAFARI/537.36",
			want: Profile{Platform: PlatformWeb, BrowserFamily: "Chrome", BrowserVersion: "99.0.1", OSFamily: "Windows", OSVersion: "10.0", DeviceType: DeviceDesktop},
		},
		{
			name: "unparseable stays empty",
			ua:   "totally-custom-client/1.0",
			want: Profile{Platform: PlatformWeb, DeviceType: DeviceDesktop},
		},
		{
			name: "empty ua",
			ua:   "",
			want: Profile{Platform: PlatformWeb, DeviceType: DeviceDesktop},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseUserAgent(tt.ua, tt.declared)
			if got != tt.want {
				t.Errorf("ParseUserAgent() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
