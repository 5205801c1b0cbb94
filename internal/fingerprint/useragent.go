package fingerprint

import (
	"regexp"
	"strings"
)

// Platform is the client platform class.
type Platform string

const (
	PlatformWeb     Platform = "WEB"
	PlatformAndroid Platform = "ANDROID"
	PlatformIOS     Platform = "IOS"
)

// DeviceType is the coarse form factor.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
)

// Profile is the parsed result of a user-agent string. Unparseable fields
// are left empty — parsing never fails.
type Profile struct {
	Platform       Platform   `json:"platform"`
	BrowserFamily  string     `json:"browserFamily,omitempty"`
	BrowserVersion string     `json:"browserVersion,omitempty"`
	OSFamily       string     `json:"osFamily,omitempty"`
	OSVersion      string     `json:"osVersion,omitempty"`
	DeviceType     DeviceType `json:"deviceType"`
}

// Matching is ordered: the first pattern that hits wins. Edge and Opera
// must precede Chrome, and Chrome must precede Safari, because their UAs
// embed the earlier tokens.
var browserMatchers = []struct {
	family  string
	pattern *regexp.Regexp
}{
	{"Edge", regexp.MustCompile(`(?i)edg(?:e|a|ios)?/([\d.]+)`)},
	{"Opera", regexp.MustCompile(`(?i)(?:opr|opera)[/ ]([\d.]+)`)},
	{"Samsung Internet", regexp.MustCompile(`(?i)samsungbrowser/([\d.]+)`)},
	{"Chrome", regexp.MustCompile(`(?i)(?:chrome|crios)/([\d.]+)`)},
	{"Firefox", regexp.MustCompile(`(?i)(?:firefox|fxios)/([\d.]+)`)},
	{"Safari", regexp.MustCompile(`(?i)version/([\d.]+).*safari`)},
}

var osMatchers = []struct {
	family  string
	pattern *regexp.Regexp
}{
	{"Windows", regexp.MustCompile(`(?i)windows nt ([\d.]+)`)},
	{"Android", regexp.MustCompile(`(?i)android ([\d.]+)`)},
	{"iOS", regexp.MustCompile(`(?i)(?:iphone|cpu) os ([\d_]+)`)},
	{"macOS", regexp.MustCompile(`(?i)mac os x ([\d_.]+)`)},
	{"Linux", regexp.MustCompile(`(?i)(linux)`)},
}

// ParseUserAgent derives a device profile from a UA string and an optional
// client-declared platform ("web", "android", "ios"). The declared platform
// wins over UA inference when present.
func ParseUserAgent(ua, declaredPlatform string) Profile {
	lower := strings.ToLower(ua)
	p := Profile{
		Platform:   inferPlatform(lower, declaredPlatform),
		DeviceType: inferDeviceType(lower),
	}

	for _, m := range browserMatchers {
		if match := m.pattern.FindStringSubmatch(ua); match != nil {
			p.BrowserFamily = m.family
			p.BrowserVersion = match[1]
			break
		}
	}

	for _, m := range osMatchers {
		if match := m.pattern.FindStringSubmatch(ua); match != nil {
			p.OSFamily = m.family
			if m.family != "Linux" {
				p.OSVersion = strings.ReplaceAll(match[1], "_", ".")
			}
			break
		}
	}

	return p
}

func inferPlatform(lowerUA, declared string) Platform {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "android":
		return PlatformAndroid
	case "ios":
		return PlatformIOS
	case "web":
		return PlatformWeb
	}

	switch {
	case strings.Contains(lowerUA, "android"):
		return PlatformAndroid
	case strings.Contains(lowerUA, "iphone"), strings.Contains(lowerUA, "ipad"),
		strings.Contains(lowerUA, "ipod"):
		return PlatformIOS
	default:
		return PlatformWeb
	}
}

func inferDeviceType(lowerUA string) DeviceType {
	switch {
	case strings.Contains(lowerUA, "ipad"), strings.Contains(lowerUA, "tablet"):
		return DeviceTablet
	case strings.Contains(lowerUA, "mobi"), strings.Contains(lowerUA, "android"),
		strings.Contains(lowerUA, "iphone"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}
