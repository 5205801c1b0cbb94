// Package fingerprint canonicalizes raw device signals into a stable hash
// and a parsed device profile.
//
// The hash covers only the semi-stable components listed in Payload — the
// attributes that survive page reloads and IP changes but shift when the
// underlying device changes. Everything else on Payload is detection
// evidence consumed by the signal detectors, not hash input.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Payload is the raw signal set submitted by a client for validation.
// All fields are optional; missing components degrade to empty strings so
// the hash stays stable across partial payloads.
type Payload struct {
	// Hash components (order-normalized, pipe-joined, SHA-256 digested).
	CanvasHash          string   `json:"canvasHash"`
	WebGLHash           string   `json:"webglHash"`
	AudioHash           string   `json:"audioHash"`
	Fonts               []string `json:"fonts"`
	ScreenResolution    string   `json:"screenResolution"`
	ColorDepth          int      `json:"colorDepth"`
	Timezone            string   `json:"timezone"`
	Language            string   `json:"language"`
	Platform            string   `json:"platform"`
	HardwareConcurrency int      `json:"hardwareConcurrency"`
	WebGLVendor         string   `json:"webglVendor"`
	WebGLRenderer       string   `json:"webglRenderer"`

	// Detection evidence (not part of the hash).
	UserAgent         string   `json:"userAgent"`
	DeclaredPlatform  string   `json:"declaredPlatform"`
	Webdriver         bool     `json:"webdriver"`
	Automation        bool     `json:"automation"`
	Plugins           []string `json:"plugins"`
	InteractionEvents int      `json:"interactionEvents"`
	SessionDurationMs int64    `json:"sessionDurationMs"`
	MaxTouchPoints    int      `json:"maxTouchPoints"`
	DeviceModel       string   `json:"deviceModel"`
	Rooted            bool     `json:"rooted"`
	EmulatorFlag      bool     `json:"emulatorFlag"`
}

// Hash computes the deterministic device hash for a payload.
//
// Guarantees: the same component set always produces the same hash, and a
// change to any hash component produces a different hash. Fonts are sorted
// before joining so client-side ordering differences don't fork devices.
func Hash(p Payload) string {
	fonts := make([]string, len(p.Fonts))
	copy(fonts, p.Fonts)
	sort.Strings(fonts)

	components := []string{
		p.CanvasHash,
		p.WebGLHash,
		p.AudioHash,
		strings.Join(fonts, ","),
		p.ScreenResolution,
		strconv.Itoa(p.ColorDepth),
		p.Timezone,
		p.Language,
		p.Platform,
		strconv.Itoa(p.HardwareConcurrency),
		p.WebGLVendor,
		p.WebGLRenderer,
	}

	sum := sha256.Sum256([]byte(strings.Join(components, "|")))
	return hex.EncodeToString(sum[:])
}
