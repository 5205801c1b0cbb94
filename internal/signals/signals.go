// Package signals detects automation and emulation from raw device evidence.
// Detectors are pure: they never fail and never touch storage; an absent
// signal simply contributes nothing to the score.
package signals

import "github.com/mbd888/fraudguard/internal/fingerprint"

// DetectionThreshold is the score at or above which a detector flags.
const DetectionThreshold = 50

// Signal is a single weighted piece of evidence.
type Signal struct {
	Type        string `json:"type"`
	Weight      int    `json:"weight"`
	Description string `json:"description"`
}

// Result is the outcome of running a detector over a payload.
type Result struct {
	Flagged    bool     `json:"flagged"`
	Score      int      `json:"score"`
	Confidence float64  `json:"confidence"`
	Signals    []Signal `json:"signals,omitempty"`
}

// Detector scores a fingerprint payload against one class of threat.
type Detector interface {
	Detect(p fingerprint.Payload) Result
}

// rule pairs a predicate with the signal it emits when the predicate holds.
// Keeping the weight tables as data lets them be tuned without touching
// detection logic.
type rule struct {
	match  func(p fingerprint.Payload) bool
	signal Signal
}

func evaluate(rules []rule, p fingerprint.Payload) Result {
	var r Result
	for _, ru := range rules {
		if ru.match(p) {
			r.Score += ru.signal.Weight
			r.Signals = append(r.Signals, ru.signal)
		}
	}
	r.Flagged = r.Score >= DetectionThreshold
	r.Confidence = min(float64(r.Score)/100.0, 1.0)
	return r
}
