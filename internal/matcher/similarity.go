package matcher

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"settlement-matching-service/internal/models"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
)

// ComponentScore is the outcome of a single similarity primitive: a score
// in [0,1] plus enough metadata to build explanation text.
type ComponentScore struct {
	Score  float64
	Reason string

	// HardZero marks a business-invariant violation that forces the
	// composite score to zero regardless of other signals.
	HardZero bool
}

var (
	centTolerance = decimal.NewFromFloat(0.01)

	hexAddressPattern    = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{16,}$`)
	base58AddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{26,}$`)
	shortAddressPattern  = regexp.MustCompile(`^([0-9a-zA-Z]{4,})(?:\.{3}|…)([0-9a-zA-Z]{4,})$`)

	legalSuffixPattern  = regexp.MustCompile(`(?i)\s+(llc|inc|ltd|gmbh|corp|co|sa|s\.a\.|ltda|me|mei|eireli)\.?\s*$`)
	parentheticalPattern = regexp.MustCompile(`\s*\([^)]*\)`)
	pixLabelPattern      = regexp.MustCompile(`^\s*[^:]{1,24}:\s*(.+)$`)
	digitRunPattern      = regexp.MustCompile(`\d{4,}`)
	tokenSplitPattern    = regexp.MustCompile(`[^a-z0-9]+`)
	numericTokenPattern  = regexp.MustCompile(`^\d+$`)
)

// descriptionStopwords are tokens that carry no matching signal in wire
// descriptions: transfer boilerplate plus month and day names.
var descriptionStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "from": true, "with": true,
	"via": true, "ref": true, "reference": true, "payment": true,
	"transfer": true, "wire": true, "pix": true, "ted": true, "ach": true,
	"invoice": true, "payroll": true, "salary": true, "to": true, "of": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true,
	"jul": true, "aug": true, "sep": true, "oct": true, "nov": true, "dec": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

// amountScore compares the record's expected amount against the candidate
// amount by absolute value, with piecewise decay over the relative
// difference and a penalty for outgoing-signed candidates.
func amountScore(expected decimal.Decimal, candidate *models.TransactionCandidate, config *Config) ComponentScore {
	if !expected.IsPositive() {
		return ComponentScore{Score: 0, Reason: "expected amount is not positive"}
	}

	diff := expected.Sub(candidate.AbsoluteAmount()).Abs()

	base := 0.0
	reason := ""
	switch {
	case diff.LessThanOrEqual(centTolerance):
		base = 1.0
		reason = "exact amount match"
	default:
		d, _ := diff.Div(expected).Float64()
		tolerance := config.AmountTolerance()

		switch {
		case d <= 0.01:
			base = 0.98
			reason = "amount within 1%"
		case d <= tolerance:
			base = 0.95
			reason = fmt.Sprintf("amount within %.1f%% tolerance", config.AmountTolerancePercent)
		case d <= 0.10:
			// Linear decay from 0.85 at the tolerance edge down to 0.50 at 10%.
			span := 0.10 - tolerance
			base = 0.85 - (d-tolerance)/span*0.35
			reason = fmt.Sprintf("amount off by %.1f%%", d*100)
		case d <= 0.25:
			base = 0.50 * (0.25 - d) / 0.15
			reason = fmt.Sprintf("amount off by %.1f%%", d*100)
		default:
			return ComponentScore{Score: 0, Reason: fmt.Sprintf("amount off by %.1f%%", d*100)}
		}
	}

	if candidate.IsOutgoing() {
		base *= config.NegativeSignPenalty
		reason += " (outgoing sign penalty)"
	}

	return ComponentScore{Score: base, Reason: reason}
}

// dateScore compares the record's target date (due date, falling back to
// issue date) against the transaction date.
//
// Hard rule: a transaction dated before the record's issue date cannot
// settle it. That pair scores zero unconditionally; it is a business
// invariant, not a tunable.
func dateScore(record *models.SourceRecord, candidate *models.TransactionCandidate, config *Config) ComponentScore {
	issue := truncateToDay(record.IssueDate)
	txDate := truncateToDay(candidate.Date)
	target := truncateToDay(record.TargetDate())

	if issue.After(txDate) {
		return ComponentScore{
			Score:    0,
			HardZero: true,
			Reason:   "transaction predates record issue date",
		}
	}

	diffDays := int(txDate.Sub(target).Hours() / 24)
	if diffDays < 0 {
		if -diffDays > config.DateGraceDays {
			return ComponentScore{Score: 0, Reason: fmt.Sprintf("transaction %d days before target date", -diffDays)}
		}
		// Early settlement inside the grace window scores by distance.
		diffDays = -diffDays
	}

	score := 0.0
	switch {
	case diffDays == 0:
		score = 1.0
	case diffDays <= 3:
		score = 0.95
	case diffDays <= 7:
		score = 0.90
	case diffDays <= 30:
		score = 0.70
	case diffDays <= 90:
		score = 0.40
	case diffDays <= 180:
		score = 0.25
	case diffDays <= 365:
		score = 0.10
	default:
		score = 0.02
	}

	return ComponentScore{Score: score, Reason: fmt.Sprintf("%d days from target date", diffDays)}
}

// counterpartyScore compares the record's counterparty against the
// candidate side of the transaction. Wallet addresses get address-aware
// matching; everything else runs in high-precision fuzzy mode where only
// ratios at or above the configured floor contribute.
func counterpartyScore(recordParty, candidateParty string, config *Config) ComponentScore {
	a := normalizeCounterparty(recordParty)
	b := normalizeCounterparty(candidateParty)

	if a == "" || b == "" {
		return ComponentScore{Score: 0, Reason: "counterparty unavailable"}
	}

	if looksLikeWalletAddress(a) && looksLikeWalletAddress(b) {
		score := matchWalletAddresses(a, b)
		return ComponentScore{Score: score, Reason: "wallet address comparison"}
	}

	if a == b {
		return ComponentScore{Score: 1.0, Reason: "exact counterparty match"}
	}

	ratio := similarityRatio(a, b)
	if ratio >= config.CounterpartyMinRatio {
		return ComponentScore{Score: ratio, Reason: fmt.Sprintf("counterparty similarity %.2f", ratio)}
	}

	return ComponentScore{Score: 0, Reason: "counterparty dissimilar"}
}

// patternScore measures how much of the record's reference and naming shows
// up in the transaction description. A verbatim structured reference is
// decisive on its own; a long numeric fragment of it is nearly so.
func patternScore(record *models.SourceRecord, candidate *models.TransactionCandidate) ComponentScore {
	description := strings.ToLower(candidate.Description)
	reference := strings.ToLower(strings.TrimSpace(record.Reference))

	if reference != "" && strings.Contains(description, reference) {
		return ComponentScore{Score: 1.0, Reason: "reference found verbatim in description"}
	}

	recordText := strings.ToLower(record.Counterparty + " " + record.Reference)
	recordTokens := keywordTokens(recordText)
	descriptionTokens := keywordTokens(description)

	blended := 0.7*jaccard(recordTokens, descriptionTokens) + 0.3*similarityRatio(recordText, description)

	if reference != "" {
		for _, run := range digitRunPattern.FindAllString(reference, -1) {
			if strings.Contains(description, run) {
				if blended < 0.8 {
					blended = 0.8
				}
				return ComponentScore{Score: blended, Reason: "reference number fragment found in description"}
			}
		}
	}

	if blended <= 0 {
		return ComponentScore{Score: 0, Reason: "no description overlap"}
	}

	return ComponentScore{Score: blended, Reason: fmt.Sprintf("description overlap %.2f", blended)}
}

// counterpartyField picks the transaction field that names the other party
// of the movement: destination for outgoing money, origin for incoming,
// falling back to the free-text description.
func counterpartyField(candidate *models.TransactionCandidate) string {
	if candidate.IsOutgoing() && candidate.Destination != "" {
		return candidate.Destination
	}
	if !candidate.IsOutgoing() && candidate.Origin != "" {
		return candidate.Origin
	}
	if candidate.Destination != "" {
		return candidate.Destination
	}
	if candidate.Origin != "" {
		return candidate.Origin
	}
	return candidate.Description
}

// normalizeCounterparty lowercases a counterparty name and strips the noise
// banks append around it: legal suffixes, parenthetical account numbers and
// PIX-style "label: Name (id)" framing.
func normalizeCounterparty(name string) string {
	s := strings.TrimSpace(strings.ToLower(name))
	if s == "" {
		return ""
	}

	if m := pixLabelPattern.FindStringSubmatch(s); m != nil && !strings.Contains(s, "...") {
		s = m[1]
	}

	s = parentheticalPattern.ReplaceAllString(s, "")
	s = legalSuffixPattern.ReplaceAllString(s, "")

	return strings.Join(strings.Fields(s), " ")
}

// looksLikeWalletAddress reports whether a normalized string is a
// blockchain address, either full or in shortened display form.
func looksLikeWalletAddress(s string) bool {
	s = strings.ReplaceAll(s, " ", "")
	if shortAddressPattern.MatchString(s) {
		return true
	}
	return hexAddressPattern.MatchString(s) || base58AddressPattern.MatchString(s)
}

// matchWalletAddresses compares two wallet addresses, handling the common
// shortened "prefix...suffix" display form: a full match on both halves is
// as good as exact, a single half is weak evidence.
func matchWalletAddresses(a, b string) float64 {
	a = strings.ReplaceAll(a, " ", "")
	b = strings.ReplaceAll(b, " ", "")

	if a == b {
		return 1.0
	}

	aPrefix, aSuffix, aShort := splitShortAddress(a)
	bPrefix, bSuffix, bShort := splitShortAddress(b)

	if !aShort && !bShort {
		return 0.0
	}

	// Compare the shortened form against the halves of the other side.
	prefixAgree := strings.HasPrefix(b, aPrefix) || strings.HasPrefix(a, bPrefix)
	suffixAgree := strings.HasSuffix(b, aSuffix) || strings.HasSuffix(a, bSuffix)
	if aShort && bShort {
		prefixAgree = aPrefix == bPrefix
		suffixAgree = aSuffix == bSuffix
	}

	switch {
	case prefixAgree && suffixAgree:
		return 1.0
	case prefixAgree || suffixAgree:
		return 0.7
	default:
		return 0.0
	}
}

func splitShortAddress(s string) (prefix, suffix string, ok bool) {
	if m := shortAddressPattern.FindStringSubmatch(s); m != nil {
		return m[1], m[2], true
	}
	return s, s, false
}

// similarityRatio computes a [0,1] sequence similarity from the
// Levenshtein distance between two strings.
func similarityRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}

	distance := levenshtein.ComputeDistance(a, b)
	ratio := 1.0 - float64(distance)/float64(maxLen)
	if ratio < 0 {
		return 0.0
	}
	return ratio
}

// keywordTokens splits text into the set of tokens that carry matching
// signal: stopwords, calendar names and pure numbers are dropped.
func keywordTokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, token := range tokenSplitPattern.Split(strings.ToLower(text), -1) {
		if len(token) < 2 {
			continue
		}
		if descriptionStopwords[token] || numericTokenPattern.MatchString(token) {
			continue
		}
		tokens[token] = true
	}
	return tokens
}

// jaccard computes the Jaccard overlap of two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func truncateToDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
