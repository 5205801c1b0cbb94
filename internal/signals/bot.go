package signals

import (
	"strings"

	"github.com/mbd888/fraudguard/internal/fingerprint"
)

// Generic automation tokens in the user agent. Framework-specific tokens
// (selenium, phantomjs, ...) carry their own heavier signals below.
var botUAPatterns = []string{
	"bot", "crawler", "spider", "scraper", "headless",
	"curl", "wget", "python-requests", "httpclient", "java/",
}

var botRules = []rule{
	{
		match: func(p fingerprint.Payload) bool {
			return containsAny(strings.ToLower(p.UserAgent), botUAPatterns)
		},
		signal: Signal{Type: "bot_user_agent", Weight: 30, Description: "user agent matches a known bot pattern"},
	},
	{
		match:  func(p fingerprint.Payload) bool { return p.Webdriver },
		signal: Signal{Type: "webdriver", Weight: 40, Description: "navigator.webdriver flag is set"},
	},
	{
		match:  func(p fingerprint.Payload) bool { return p.Automation },
		signal: Signal{Type: "automation_framework", Weight: 40, Description: "browser automation properties detected"},
	},
	{
		match:  uaContains("phantomjs"),
		signal: Signal{Type: "phantomjs", Weight: 50, Description: "PhantomJS user agent"},
	},
	{
		match:  uaContains("nightmare"),
		signal: Signal{Type: "nightmare", Weight: 50, Description: "Nightmare.js user agent"},
	},
	{
		match:  uaContains("selenium"),
		signal: Signal{Type: "selenium", Weight: 50, Description: "Selenium user agent"},
	},
	{
		match:  uaContains("cypress"),
		signal: Signal{Type: "cypress", Weight: 30, Description: "Cypress user agent"},
	},
	{
		match:  func(p fingerprint.Payload) bool { return p.CanvasHash == "" },
		signal: Signal{Type: "missing_canvas", Weight: 15, Description: "no canvas fingerprint"},
	},
	{
		match:  func(p fingerprint.Payload) bool { return p.WebGLHash == "" },
		signal: Signal{Type: "missing_webgl", Weight: 15, Description: "no WebGL fingerprint"},
	},
	{
		match:  func(p fingerprint.Payload) bool { return p.AudioHash == "" },
		signal: Signal{Type: "missing_audio", Weight: 10, Description: "no audio fingerprint"},
	},
	{
		match:  func(p fingerprint.Payload) bool { return p.HardwareConcurrency == 0 },
		signal: Signal{Type: "zero_hardware_concurrency", Weight: 20, Description: "hardware concurrency reported as zero"},
	},
	{
		match: func(p fingerprint.Payload) bool {
			return p.InteractionEvents == 0 && p.SessionDurationMs > 5000
		},
		signal: Signal{Type: "no_interaction", Weight: 25, Description: "no user interaction despite session longer than 5s"},
	},
	{
		match:  func(p fingerprint.Payload) bool { return len(p.Plugins) == 0 },
		signal: Signal{Type: "no_plugins", Weight: 10, Description: "empty browser plugin list"},
	},
	{
		match: func(p fingerprint.Payload) bool {
			return p.ScreenResolution == "0x0" || p.ScreenResolution == "1x1"
		},
		signal: Signal{Type: "degenerate_resolution", Weight: 30, Description: "screen resolution is 0x0 or 1x1"},
	},
}

// BotDetector flags headless browsers and scripted clients.
type BotDetector struct{}

func NewBotDetector() *BotDetector { return &BotDetector{} }

func (d *BotDetector) Detect(p fingerprint.Payload) Result {
	return evaluate(botRules, p)
}

func uaContains(token string) func(fingerprint.Payload) bool {
	return func(p fingerprint.Payload) bool {
		return strings.Contains(strings.ToLower(p.UserAgent), token)
	}
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
