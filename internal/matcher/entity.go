package matcher

import (
	"fmt"
	"regexp"
	"strings"
)

// EntityRule maps a counterparty-name pattern to a canonical business
// entity. Rules are evaluated in order; the first match wins.
type EntityRule struct {
	Pattern *regexp.Regexp
	Entity  string
}

// EntityResolver maps counterparty names and payment descriptions to the
// canonical business entities the accounting subsystem reports under.
type EntityResolver struct {
	rules []EntityRule
}

// NewEntityResolver creates a resolver with the given rules.
func NewEntityResolver(rules []EntityRule) *EntityResolver {
	return &EntityResolver{rules: rules}
}

// AddRule appends a counterparty pattern mapping. Patterns are matched
// case-insensitively against normalized counterparty text.
func (er *EntityResolver) AddRule(pattern, entity string) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid entity pattern %q: %w", pattern, err)
	}
	er.rules = append(er.rules, EntityRule{Pattern: re, Entity: entity})
	return nil
}

// Resolve returns the canonical entity implied by the given text, or the
// empty string when no rule matches.
func (er *EntityResolver) Resolve(text string) string {
	if er == nil || text == "" {
		return ""
	}
	for _, rule := range er.rules {
		if rule.Pattern.MatchString(text) {
			return rule.Entity
		}
	}
	return ""
}

func normalizeEntity(entity string) string {
	return strings.Join(strings.Fields(strings.ToLower(entity)), " ")
}

// entityScore rewards agreement between the record's declared entity and
// the transaction's classified entity label.
//
// When the transaction entity is unresolved ("needs review"), partial
// credit is given only while the deterministic signals corroborate the
// pair; an unclassified transaction with a weak amount or date match gets
// little benefit of the doubt.
func (s *Scorer) entityScore(recordEntity, candidateLabel string, candidateText string, amount, date ComponentScore) ComponentScore {
	declared := normalizeEntity(recordEntity)
	classified := normalizeEntity(candidateLabel)

	if declared == "" {
		return ComponentScore{Score: 0.5, Reason: "record declares no entity"}
	}

	if classified != "" && classified != EntityNeedsReviewNormalized {
		if classified == declared {
			return ComponentScore{Score: 1.0, Reason: "entity labels agree"}
		}
		return ComponentScore{Score: 0.0, Reason: fmt.Sprintf("entity mismatch: %s vs %s", declared, classified)}
	}

	// Unresolved label: see whether known counterparty patterns imply the
	// record's entity anyway.
	if implied := s.entities.Resolve(candidateText); normalizeEntity(implied) == declared {
		return ComponentScore{Score: 0.7, Reason: "entity implied by counterparty pattern"}
	}

	if amount.Score >= 0.95 && date.Score >= 0.70 {
		return ComponentScore{Score: 0.65, Reason: "entity unresolved, other signals strong"}
	}

	return ComponentScore{Score: 0.3, Reason: "entity unresolved"}
}

// EntityNeedsReviewNormalized is the normalized form of the classifier's
// unresolved placeholder label.
const EntityNeedsReviewNormalized = "needs review"
