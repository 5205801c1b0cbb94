// Package txrisk scores transactions for fraud risk using account history
// and order characteristics, and keeps an audit trail of every assessment.
package txrisk

import (
	"context"
	"time"

	"github.com/mbd888/fraudguard/internal/signals"
)

// Risk tiers for transactions.
const (
	RiskMinimal = "minimal"
	RiskLow     = "low"
	RiskMedium  = "medium"
	RiskHigh    = "high"
)

// Recommendations, one per tier.
const (
	RecommendApprove      = "approve"
	RecommendVerification = "additional_verification"
	RecommendManualReview = "manual_review"
	RecommendDecline      = "decline"
)

// Tier thresholds.
const (
	HighThreshold   = 70
	MediumThreshold = 40
	LowThreshold    = 20
)

// Transaction is one order under assessment, with the account context the
// scorer needs. Absent context (zero values) contributes nothing.
type Transaction struct {
	UserID          string  `json:"userId"`
	AmountUSD       float64 `json:"amountUsd"`
	BillingPostal   string  `json:"billingPostal,omitempty"`
	ShippingPostal  string  `json:"shippingPostal,omitempty"`
	FingerprintHash string  `json:"fingerprintHash,omitempty"`

	AccountCreatedAt    time.Time `json:"accountCreatedAt,omitempty"`
	AvgTransactionUSD   float64   `json:"avgTransactionUsd,omitempty"`
	HasPriorChargeback  bool      `json:"hasPriorChargeback,omitempty"`
	ReturnRate          float64   `json:"returnRate,omitempty"`
	TransactionsLast24h int       `json:"transactionsLast24h,omitempty"`
}

// Assessment is the scored outcome, persisted for audit.
type Assessment struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	AmountUSD      float64          `json:"amountUsd"`
	Score          int              `json:"score"`
	RiskLevel      string           `json:"riskLevel"`
	Recommendation string           `json:"recommendation"`
	Factors        []signals.Signal `json:"factors,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Store is the assessment audit trail.
type Store interface {
	Save(ctx context.Context, a *Assessment) error
	ListForUser(ctx context.Context, userID string, limit int) ([]*Assessment, error)
}
