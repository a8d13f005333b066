package matcher

import (
	"fmt"
	"sort"
	"strings"

	"settlement-matching-service/internal/models"
	"settlement-matching-service/pkg/logger"
)

// Scorer combines the similarity primitives into composite confidence
// scores and classifies them into confidence tiers. A Scorer is immutable
// after construction and safe for concurrent use.
type Scorer struct {
	config   *Config
	entities *EntityResolver
	logger   logger.Logger
}

// NewScorer creates a scorer with the given configuration. A nil config
// falls back to DefaultConfig; a nil resolver disables pattern-based
// entity inference.
func NewScorer(config *Config, entities *EntityResolver) *Scorer {
	if config == nil {
		config = DefaultConfig()
	}
	if entities == nil {
		entities = NewEntityResolver(nil)
	}

	return &Scorer{
		config:   config,
		entities: entities,
		logger:   logger.GetGlobalLogger().WithComponent("scorer"),
	}
}

// Config returns a copy of the scorer's configuration.
func (s *Scorer) Config() *Config {
	return s.config.Clone()
}

// Score evaluates one (record, candidate) pair. It returns nil when the
// pair is rejected: temporal-ordering violations and composite scores
// below the medium threshold are never emitted as results.
func (s *Scorer) Score(record *models.SourceRecord, candidate *models.TransactionCandidate) *models.MatchResult {
	amount := amountScore(record.Amount, candidate, s.config)
	date := dateScore(record, candidate, s.config)

	// Temporal invariant: nothing can rescue a pair where the payment
	// predates the record's issue date.
	if date.HardZero {
		return nil
	}

	counterparty := counterpartyScore(record.Counterparty, counterpartyField(candidate), s.config)
	pattern := patternScore(record, candidate)
	entity := s.entityScore(record.Entity, candidate.EntityLabel,
		candidate.Description+" "+counterpartyField(candidate), amount, date)

	scores := models.CriteriaScores{
		models.CriterionAmount:       amount.Score,
		models.CriterionDate:         date.Score,
		models.CriterionCounterparty: counterparty.Score,
		models.CriterionPattern:      pattern.Score,
		models.CriterionEntity:       entity.Score,
	}

	profile := s.selectProfile(scores)
	weights := s.config.WeightsFor(profile)

	composite := amount.Score*weights.Amount +
		date.Score*weights.Date +
		counterparty.Score*weights.Counterparty +
		entity.Score*weights.Entity +
		pattern.Score*weights.Pattern

	// A verbatim structured reference with the amount inside tolerance is
	// decisive evidence on its own, even when weaker signals drag the
	// weighted blend down.
	if pattern.Score == 1.0 && amount.Score >= 0.85 && composite < 0.96 {
		composite = 0.96
	}

	if composite < s.config.MediumThreshold {
		return nil
	}

	tier, autoMatch := s.config.Classify(composite)

	result := &models.MatchResult{
		SourceID:      record.ID,
		TransactionID: candidate.ID,
		Score:         composite,
		Tier:          tier,
		MatchType:     deriveMatchType(scores),
		AutoMatch:     autoMatch,
		Explanation:   buildExplanation(profile, amount, date, counterparty, entity, pattern),
	}

	s.logger.WithFields(logger.Fields{
		"source_id":      record.ID,
		"transaction_id": candidate.ID,
		"score":          fmt.Sprintf("%.3f", composite),
		"tier":           string(tier),
		"profile":        profile.String(),
	}).Debug("Scored candidate pair")

	return result
}

// ScoreCandidates scores every candidate for a record and returns the
// surviving results sorted by descending score. Ties break on transaction
// ID so the ordering is deterministic.
func (s *Scorer) ScoreCandidates(record *models.SourceRecord, candidates []*models.TransactionCandidate) []*models.MatchResult {
	var results []*models.MatchResult

	for _, candidate := range candidates {
		if result := s.Score(record, candidate); result != nil {
			results = append(results, result)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].TransactionID < results[j].TransactionID
	})

	return results
}

// selectProfile picks the weight profile for a pair. The crypto-rail
// profile applies when the counterparty signal is absent while the entity
// signal is strong, the shape of wallet-rail settlements where the payer
// name never appears in the ledger text.
func (s *Scorer) selectProfile(scores models.CriteriaScores) WeightProfile {
	if scores.Get(models.CriterionCounterparty) < 0.3 && scores.Get(models.CriterionEntity) >= 0.65 {
		return ProfileCryptoRail
	}
	return ProfileStandard
}

// Classify buckets a composite score into its confidence tier and reports
// whether it qualifies for automatic application. Scores below the medium
// threshold are LOW; callers upstream normally discard those before
// classification ever happens.
func (c *Config) Classify(score float64) (models.ConfidenceTier, bool) {
	switch {
	case score >= c.HighThreshold:
		return models.TierHigh, true
	case score >= c.MediumThreshold:
		return models.TierMedium, false
	default:
		return models.TierLow, false
	}
}

// deriveMatchType names the single primitive that contributed the maximum
// component score.
func deriveMatchType(scores models.CriteriaScores) models.MatchType {
	best := scores.Best()

	// When several criteria are jointly strong, the match is better
	// described as combined than by any single signal.
	strong := 0
	for _, c := range []models.Criterion{models.CriterionAmount, models.CriterionDate, models.CriterionCounterparty, models.CriterionPattern} {
		if scores.Get(c) >= 0.9 {
			strong++
		}
	}
	if strong >= 3 {
		return models.MatchTypeCombined
	}

	switch best {
	case models.CriterionAmount:
		return models.MatchTypeAmountExact
	case models.CriterionCounterparty:
		return models.MatchTypeCounterpartyMatch
	case models.CriterionDate:
		return models.MatchTypeDateProximity
	case models.CriterionPattern:
		return models.MatchTypePatternMatch
	case models.CriterionEntity:
		return models.MatchTypeEntityMatch
	default:
		return models.MatchTypeCombined
	}
}

// buildExplanation summarizes the component evidence into the one-line
// explanation persisted with pending matches.
func buildExplanation(profile WeightProfile, components ...ComponentScore) string {
	parts := make([]string, 0, len(components)+1)
	for _, c := range components {
		if c.Reason != "" {
			parts = append(parts, fmt.Sprintf("%s (%.2f)", c.Reason, c.Score))
		}
	}
	parts = append(parts, "profile "+profile.String())
	return strings.Join(parts, "; ")
}
