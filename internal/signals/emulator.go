package signals

import (
	"strings"

	"github.com/mbd888/fraudguard/internal/fingerprint"
)

var emulatorModelPatterns = []string{
	"emulator", "simulator", "generic", "sdk_gphone",
	"android sdk built for", "goldfish", "ranchu", "vbox",
}

var emulatorGPUPatterns = []string{
	"swiftshader", "llvmpipe", "virtualbox", "vmware",
	"software renderer", "mesa offscreen",
}

var emulatorRules = []rule{
	{
		match:  func(p fingerprint.Payload) bool { return p.EmulatorFlag },
		signal: Signal{Type: "emulator_flag", Weight: 50, Description: "client self-reports running under an emulator"},
	},
	{
		match:  func(p fingerprint.Payload) bool { return p.Rooted },
		signal: Signal{Type: "rooted_device", Weight: 20, Description: "device is rooted or jailbroken"},
	},
	{
		match: func(p fingerprint.Payload) bool {
			return containsAny(strings.ToLower(p.DeviceModel), emulatorModelPatterns)
		},
		signal: Signal{Type: "emulator_model", Weight: 40, Description: "device model matches a known emulator image"},
	},
	{
		match: func(p fingerprint.Payload) bool {
			gl := strings.ToLower(p.WebGLVendor + " " + p.WebGLRenderer)
			return containsAny(gl, emulatorGPUPatterns)
		},
		signal: Signal{Type: "virtual_gpu", Weight: 35, Description: "GPU identifies as a software or VM renderer"},
	},
	{
		match: func(p fingerprint.Payload) bool {
			return isMobile(p) && p.MaxTouchPoints == 0 &&
				!strings.Contains(strings.ToLower(p.UserAgent), "tablet")
		},
		signal: Signal{Type: "no_touch_support", Weight: 25, Description: "mobile device without touch support"},
	},
	{
		match: func(p fingerprint.Payload) bool {
			model := strings.ToLower(strings.TrimSpace(p.DeviceModel))
			return isMobile(p) && (model == "" || model == "unknown")
		},
		signal: Signal{Type: "unknown_model", Weight: 20, Description: "mobile device without a model identifier"},
	},
}

// EmulatorDetector flags mobile emulators and virtualized devices.
type EmulatorDetector struct{}

func NewEmulatorDetector() *EmulatorDetector { return &EmulatorDetector{} }

func (d *EmulatorDetector) Detect(p fingerprint.Payload) Result {
	return evaluate(emulatorRules, p)
}

func isMobile(p fingerprint.Payload) bool {
	profile := fingerprint.ParseUserAgent(p.UserAgent, p.DeclaredPlatform)
	return profile.Platform == fingerprint.PlatformAndroid ||
		profile.Platform == fingerprint.PlatformIOS
}
