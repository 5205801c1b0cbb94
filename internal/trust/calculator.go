// Package trust computes the 0-100 device trust score and the risk level
// derived from it. The calculation is pure: every input is passed in, every
// contributing factor is itemized in the result.
package trust

import (
	"math"
	"time"

	"github.com/mbd888/fraudguard/internal/device"
)

// Score bases for devices never seen before vs. already on record.
const (
	BaseUnseen = 30
	BaseSeen   = 50
)

// Input carries everything the calculator needs about a device and its
// (optional) association with the requesting user.
type Input struct {
	Known       bool
	FirstSeenAt time.Time
	Now         time.Time // zero means time.Now()

	LoginCount       int
	FailedLoginCount int
	SuspiciousCount  int
	AssociatedUsers  int
	OpenIncidents    int

	// Association state for the requesting user, zero-valued when the
	// request carries no user or no association exists.
	AssocTrusted  bool
	AssocVerified bool
	UseCount      int

	BotConfidence      float64
	EmulatorConfidence float64
	IsBot              bool
	IsEmulator         bool
}

// Factor is one itemized contribution to the final score.
type Factor struct {
	Name  string `json:"name"`
	Delta int    `json:"delta"`
}

// Score is the calculation result.
type Score struct {
	Value     int              `json:"value"`
	RiskLevel device.RiskLevel `json:"riskLevel"`
	Factors   []Factor         `json:"factors"`
}

// Calculator computes trust scores. Stateless; safe for concurrent use.
type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

// Calculate produces the clamped trust score and risk level for the input.
func (c *Calculator) Calculate(in Input) Score {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var s Score
	base := BaseUnseen
	if in.Known {
		base = BaseSeen
	}
	s.Value = base
	s.Factors = append(s.Factors, Factor{Name: "base", Delta: base})

	if in.Known {
		if !in.FirstSeenAt.IsZero() {
			ageDays := int(now.Sub(in.FirstSeenAt).Hours() / 24)
			if bonus := minInt(15, ageDays/6); bonus > 0 {
				s.add("device_age", bonus)
			}
		}
		if bonus := minInt(15, in.LoginCount); bonus > 0 {
			s.add("login_history", bonus)
		}
		if in.AssocTrusted {
			s.add("trusted_association", 10)
		}
		if in.AssocVerified {
			s.add("verified_device", 15)
		}
		if in.UseCount > 10 {
			if bonus := minInt(10, in.UseCount/5); bonus > 0 {
				s.add("consistent_usage", bonus)
			}
		}
		if in.FailedLoginCount > 5 {
			s.add("failed_logins", -minInt(20, in.FailedLoginCount*2))
		}
		if in.SuspiciousCount > 0 {
			s.add("suspicious_activity", -minInt(30, in.SuspiciousCount*10))
		}
		if in.AssociatedUsers > 3 {
			s.add("shared_device", -minInt(20, (in.AssociatedUsers-3)*5))
		}
		if in.OpenIncidents > 0 {
			s.add("open_incidents", -minInt(50, in.OpenIncidents*25))
		}
	}

	if in.BotConfidence > 0 {
		s.add("bot_signals", -int(math.Floor(50*in.BotConfidence)))
	}
	if in.EmulatorConfidence > 0 {
		s.add("emulator_signals", -int(math.Floor(30*in.EmulatorConfidence)))
	}

	if s.Value < 0 {
		s.Value = 0
	}
	if s.Value > 100 {
		s.Value = 100
	}

	s.RiskLevel = riskLevel(s.Value, in)
	return s
}

func (s *Score) add(name string, delta int) {
	s.Value += delta
	s.Factors = append(s.Factors, Factor{Name: name, Delta: delta})
}

// riskLevel maps a score plus detector verdicts to a tier. Detector
// verdicts take priority over the raw score.
func riskLevel(score int, in Input) device.RiskLevel {
	switch {
	case in.BotConfidence >= 0.8:
		return device.RiskCritical
	case score < 20:
		return device.RiskCritical
	case in.IsBot || score < 35:
		return device.RiskHigh
	case in.IsEmulator || score < 50:
		return device.RiskMedium
	default:
		return device.RiskLow
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
