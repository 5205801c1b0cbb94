package anomaly

import "github.com/mbd888/fraudguard/internal/device"

// Tiered actions returned to callers, strongest first.
const (
	ActionBlock     = "block"
	ActionChallenge = "challenge"
	ActionVerify    = "verify"
	ActionAllow     = "allow"
)

// Decide maps a risk level to the enforcement action: critical devices are
// blocked, high-risk ones challenged, medium-risk ones asked to verify.
func Decide(level device.RiskLevel) string {
	switch level {
	case device.RiskCritical:
		return ActionBlock
	case device.RiskHigh:
		return ActionChallenge
	case device.RiskMedium:
		return ActionVerify
	default:
		return ActionAllow
	}
}
