// Package matcher implements the multi-signal scoring engine that decides
// which ledger transaction, if any, settles a given source record.
//
// The engine combines heterogeneous evidence into a single confidence value:
//   - Amount proximity with piecewise decay and sign handling
//   - Date proximity with a hard temporal-ordering rule
//   - Counterparty similarity, including wallet-address aware matching
//   - Description/reference pattern overlap
//   - Business-entity agreement
//
// Component scores are blended by a weight profile selected per pair, then
// bucketed into HIGH / MEDIUM / LOW confidence tiers that drive the
// auto-apply versus review policy downstream.
//
// Example usage:
//
//	config := matcher.DefaultConfig()
//	config.AmountTolerancePercent = 2.0
//
//	scorer := matcher.NewScorer(config, nil)
//	result := scorer.Score(record, candidate)
package matcher

import (
	"fmt"
)

// WeightProfile names one of the closed set of weighting schemes the
// composite scorer can select per pair. Profiles are fixed policy, not
// runtime configuration: tuning happens by editing the vectors below.
type WeightProfile int

const (
	// ProfileStandard emphasizes amount and date, the usual evidence for
	// bank-rail settlements where the counterparty appears in the ledger.
	ProfileStandard WeightProfile = iota

	// ProfileCryptoRail shifts weight toward amount, date and entity for
	// pairs where the counterparty never appears verbatim in the
	// transaction description but the entity classifier agrees.
	ProfileCryptoRail
)

// String returns the string representation of WeightProfile
func (wp WeightProfile) String() string {
	switch wp {
	case ProfileStandard:
		return "standard"
	case ProfileCryptoRail:
		return "crypto_rail"
	default:
		return "unknown"
	}
}

// Weights defines the relative importance of each similarity component.
// The five weights must sum to approximately 1.0.
type Weights struct {
	Amount       float64 `json:"amount"`
	Date         float64 `json:"date"`
	Counterparty float64 `json:"counterparty"`
	Entity       float64 `json:"entity"`
	Pattern      float64 `json:"pattern"`
}

// Validate checks that every weight is in [0,1] and the vector sums to ~1.0.
func (w *Weights) Validate() error {
	for name, v := range map[string]float64{
		"amount":       w.Amount,
		"date":         w.Date,
		"counterparty": w.Counterparty,
		"entity":       w.Entity,
		"pattern":      w.Pattern,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("%s weight must be between 0.0 and 1.0: %f", name, v)
		}
	}

	total := w.Amount + w.Date + w.Counterparty + w.Entity + w.Pattern
	if total < 0.98 || total > 1.02 {
		return fmt.Errorf("weights should sum to approximately 1.0, got %f", total)
	}

	return nil
}

// Config holds every policy constant of the matching engine: tolerances,
// thresholds, weight vectors and verification batching limits. The struct
// is treated as immutable once handed to a Scorer; tests and per-tenant
// tuning construct their own instance instead of mutating a shared one.
//
// Use the factory functions for common setups:
//   - DefaultConfig(): hand-tuned production policy
//   - StrictConfig(): tighter tolerances, smaller auto-apply band
//   - RelaxedConfig(): looser tolerances for exploratory runs
type Config struct {
	// AmountTolerancePercent is the relative amount difference, in
	// percent, still considered a near-match (scores ~0.95).
	AmountTolerancePercent float64 `json:"amount_tolerance_percent"`

	// NegativeSignPenalty multiplies the amount score when the candidate
	// carries an outgoing (negative) sign: refunds and reversals are less
	// certain settlements than direct payments.
	NegativeSignPenalty float64 `json:"negative_sign_penalty"`

	// DateGraceDays is how many days a transaction may precede the target
	// (due) date before the pair is ruled out. The issue-date ordering
	// rule is not configurable: a transaction dated before the record's
	// issue date always scores zero.
	DateGraceDays int `json:"date_grace_days"`

	// CounterpartyMinRatio is the minimum sequence-similarity ratio for a
	// non-exact counterparty match to score at all. High precision mode:
	// generic word overlap below this contributes nothing.
	CounterpartyMinRatio float64 `json:"counterparty_min_ratio"`

	// HighThreshold is the composite score at or above which a match is
	// tier HIGH and eligible for auto-apply.
	HighThreshold float64 `json:"high_threshold"`

	// MediumThreshold is the composite score at or above which a match is
	// tier MEDIUM. It doubles as the reject floor: pairs scoring below it
	// are discarded before classification.
	MediumThreshold float64 `json:"medium_threshold"`

	// VerifiedScoreCap bounds the adjusted score an external verification
	// approval can assign, so no AI verdict produces a perfect score.
	VerifiedScoreCap float64 `json:"verified_score_cap"`

	// VerificationBatchSize is the number of pairs per external
	// verification request.
	VerificationBatchSize int `json:"verification_batch_size"`

	// VerificationWorkers bounds the concurrent verification requests.
	VerificationWorkers int `json:"verification_workers"`

	// MaxCandidatesPerRecord limits how many windowed candidates are
	// scored per source record.
	MaxCandidatesPerRecord int `json:"max_candidates_per_record"`

	// MaxPendingPerRecord limits how many suggestions are persisted for
	// review per source record.
	MaxPendingPerRecord int `json:"max_pending_per_record"`

	// StandardWeights is the vector used by ProfileStandard.
	StandardWeights Weights `json:"standard_weights"`

	// CryptoRailWeights is the vector used by ProfileCryptoRail.
	CryptoRailWeights Weights `json:"crypto_rail_weights"`
}

// DefaultConfig returns the hand-tuned production policy.
func DefaultConfig() *Config {
	return &Config{
		AmountTolerancePercent: 3.0,
		NegativeSignPenalty:    0.9,
		DateGraceDays:          7,
		CounterpartyMinRatio:   0.85,
		HighThreshold:          0.80,
		MediumThreshold:        0.55,
		VerifiedScoreCap:       0.98,
		VerificationBatchSize:  18,
		VerificationWorkers:    3,
		MaxCandidatesPerRecord: 50,
		MaxPendingPerRecord:    3,
		StandardWeights: Weights{
			Amount:       0.40,
			Date:         0.25,
			Counterparty: 0.15,
			Entity:       0.08,
			Pattern:      0.12,
		},
		CryptoRailWeights: Weights{
			Amount:       0.45,
			Date:         0.25,
			Counterparty: 0.05,
			Entity:       0.15,
			Pattern:      0.10,
		},
	}
}

// StrictConfig returns a policy with tight tolerances and a narrow
// auto-apply band, for month-end style runs where false links are costly.
func StrictConfig() *Config {
	config := DefaultConfig()
	config.AmountTolerancePercent = 1.0
	config.DateGraceDays = 2
	config.HighThreshold = 0.90
	config.MediumThreshold = 0.65
	config.MaxPendingPerRecord = 1
	return config
}

// RelaxedConfig returns a policy with loose tolerances for exploratory
// matching of stale backlogs. Nothing auto-applies more eagerly; only the
// review band widens.
func RelaxedConfig() *Config {
	config := DefaultConfig()
	config.AmountTolerancePercent = 5.0
	config.DateGraceDays = 14
	config.MediumThreshold = 0.45
	config.MaxCandidatesPerRecord = 100
	config.MaxPendingPerRecord = 5
	return config
}

// Validate checks if the matching configuration is valid
func (c *Config) Validate() error {
	if c.AmountTolerancePercent < 0.0 || c.AmountTolerancePercent > 100.0 {
		return fmt.Errorf("amount tolerance percent must be between 0.0 and 100.0: %f", c.AmountTolerancePercent)
	}

	if c.NegativeSignPenalty <= 0.0 || c.NegativeSignPenalty > 1.0 {
		return fmt.Errorf("negative sign penalty must be in (0.0, 1.0]: %f", c.NegativeSignPenalty)
	}

	if c.DateGraceDays < 0 {
		return fmt.Errorf("date grace days cannot be negative: %d", c.DateGraceDays)
	}

	if c.CounterpartyMinRatio < 0.0 || c.CounterpartyMinRatio > 1.0 {
		return fmt.Errorf("counterparty min ratio must be between 0.0 and 1.0: %f", c.CounterpartyMinRatio)
	}

	if c.MediumThreshold < 0.0 || c.MediumThreshold > 1.0 {
		return fmt.Errorf("medium threshold must be between 0.0 and 1.0: %f", c.MediumThreshold)
	}

	if c.HighThreshold < c.MediumThreshold || c.HighThreshold > 1.0 {
		return fmt.Errorf("high threshold must be between medium threshold and 1.0: %f", c.HighThreshold)
	}

	if c.VerifiedScoreCap < c.HighThreshold || c.VerifiedScoreCap > 1.0 {
		return fmt.Errorf("verified score cap must be between high threshold and 1.0: %f", c.VerifiedScoreCap)
	}

	if c.VerificationBatchSize <= 0 {
		return fmt.Errorf("verification batch size must be positive: %d", c.VerificationBatchSize)
	}

	if c.VerificationWorkers <= 0 {
		return fmt.Errorf("verification workers must be positive: %d", c.VerificationWorkers)
	}

	if c.MaxCandidatesPerRecord <= 0 {
		return fmt.Errorf("max candidates per record must be positive: %d", c.MaxCandidatesPerRecord)
	}

	if c.MaxPendingPerRecord <= 0 {
		return fmt.Errorf("max pending per record must be positive: %d", c.MaxPendingPerRecord)
	}

	if err := c.StandardWeights.Validate(); err != nil {
		return fmt.Errorf("invalid standard weights: %w", err)
	}

	if err := c.CryptoRailWeights.Validate(); err != nil {
		return fmt.Errorf("invalid crypto rail weights: %w", err)
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	return &clone
}

// WeightsFor returns the weight vector backing the given profile.
func (c *Config) WeightsFor(profile WeightProfile) Weights {
	if profile == ProfileCryptoRail {
		return c.CryptoRailWeights
	}
	return c.StandardWeights
}

// AmountTolerance returns the configured tolerance as a ratio in [0,1].
func (c *Config) AmountTolerance() float64 {
	return c.AmountTolerancePercent / 100.0
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{AmountTolerance: %.2f%%, DateGrace: %d days, High: %.2f, Medium: %.2f, Batch: %d, Workers: %d}",
		c.AmountTolerancePercent, c.DateGraceDays, c.HighThreshold, c.MediumThreshold,
		c.VerificationBatchSize, c.VerificationWorkers)
}
