package txrisk

import (
	"context"
	"fmt"
	"time"

	"github.com/mbd888/fraudguard/internal/idgen"
	"github.com/mbd888/fraudguard/internal/logging"
	"github.com/mbd888/fraudguard/internal/retry"
	"github.com/mbd888/fraudguard/internal/signals"
)

const (
	weightYoungAccount    = 25
	weightNewishAccount   = 15
	weightValueSpike      = 20
	weightHighValue       = 10
	weightChargeback      = 35
	weightHighReturnRate  = 20
	weightPostalMismatch  = 10
	weightHighVelocity    = 15

	youngAccountAge  = 7 * 24 * time.Hour
	newishAccountAge = 30 * 24 * time.Hour
	valueSpikeRatio  = 3.0
	highValueUSD     = 1000.0
	returnRateLimit  = 0.5
	velocityLimit    = 5
)

// Scorer assesses transactions. Assessments are written to the audit store
// asynchronously; a failed write never fails the scoring call.
type Scorer struct {
	store Store
	now   func() time.Time
}

// NewScorer creates a transaction risk scorer over the given audit store.
func NewScorer(store Store) *Scorer {
	return &Scorer{store: store, now: time.Now}
}

// Score evaluates a transaction and records the assessment.
func (s *Scorer) Score(ctx context.Context, tx Transaction) *Assessment {
	now := s.now()
	a := &Assessment{
		ID:        idgen.WithPrefix("txr_"),
		UserID:    tx.UserID,
		AmountUSD: tx.AmountUSD,
		CreatedAt: now,
	}

	if !tx.AccountCreatedAt.IsZero() {
		age := now.Sub(tx.AccountCreatedAt)
		switch {
		case age < youngAccountAge:
			s.add(a, "young_account", weightYoungAccount, "account younger than 7 days")
		case age < newishAccountAge:
			s.add(a, "new_account", weightNewishAccount, "account younger than 30 days")
		}
	}

	if tx.AvgTransactionUSD > 0 && tx.AmountUSD > valueSpikeRatio*tx.AvgTransactionUSD {
		s.add(a, "value_spike", weightValueSpike,
			fmt.Sprintf("order value %.2f exceeds 3x the %.2f average", tx.AmountUSD, tx.AvgTransactionUSD))
	}
	if tx.AmountUSD > highValueUSD {
		s.add(a, "high_value", weightHighValue, "order value above $1000")
	}
	if tx.HasPriorChargeback {
		s.add(a, "prior_chargeback", weightChargeback, "account has a prior chargeback")
	}
	if tx.ReturnRate > returnRateLimit {
		s.add(a, "high_return_rate", weightHighReturnRate,
			fmt.Sprintf("return rate %.2f above 0.5", tx.ReturnRate))
	}
	if tx.BillingPostal != "" && tx.ShippingPostal != "" && tx.BillingPostal != tx.ShippingPostal {
		s.add(a, "postal_mismatch", weightPostalMismatch, "billing and shipping postal codes differ")
	}
	if tx.TransactionsLast24h > velocityLimit {
		s.add(a, "high_velocity", weightHighVelocity,
			fmt.Sprintf("%d transactions in the last 24h", tx.TransactionsLast24h))
	}

	a.RiskLevel, a.Recommendation = tier(a.Score)

	if s.store != nil {
		go func() {
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			err := retry.Do(saveCtx, 3, 100*time.Millisecond, func() error {
				return s.store.Save(saveCtx, a)
			})
			if err != nil {
				logging.L(ctx).Error("save transaction assessment", "error", err, "assessment_id", a.ID)
			}
		}()
	}
	return a
}

func (s *Scorer) add(a *Assessment, signalType string, weight int, desc string) {
	a.Score += weight
	a.Factors = append(a.Factors, signals.Signal{Type: signalType, Weight: weight, Description: desc})
}

func tier(score int) (string, string) {
	switch {
	case score >= HighThreshold:
		return RiskHigh, RecommendDecline
	case score >= MediumThreshold:
		return RiskMedium, RecommendManualReview
	case score >= LowThreshold:
		return RiskLow, RecommendVerification
	default:
		return RiskMinimal, RecommendApprove
	}
}
