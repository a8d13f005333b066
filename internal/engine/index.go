package engine

import (
	"sort"
	"time"

	"settlement-matching-service/internal/matcher"
	"settlement-matching-service/internal/models"

	"github.com/shopspring/decimal"
)

// maxAmountDeviation is the relative amount difference beyond which the
// scorer awards zero, so candidates outside it can be skipped up front.
var maxAmountDeviation = decimal.NewFromFloat(0.25)

// candidateIndex narrows the windowed candidate pool per record before
// scoring. Scoring every record against every transaction is quadratic;
// the index cuts the inner loop to candidates that could plausibly score
// above the review floor.
type candidateIndex struct {
	candidates []*models.TransactionCandidate
}

func newCandidateIndex(candidates []*models.TransactionCandidate) *candidateIndex {
	sorted := make([]*models.TransactionCandidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return &candidateIndex{candidates: sorted}
}

// Select returns the candidates worth scoring against the record: same
// currency, dated on or after the record issue date, amount within the
// scoring band. The result is capped at MaxCandidatesPerRecord, preferring
// candidates closest to the record target date.
func (ci *candidateIndex) Select(record *models.SourceRecord, config *matcher.Config) []*models.TransactionCandidate {
	target := record.TargetDate()

	var selected []*models.TransactionCandidate
	for _, candidate := range ci.candidates {
		if daysBetween(candidate.Date, record.IssueDate) > 0 {
			continue
		}
		if record.Currency != "" && candidate.Currency != "" && record.Currency != candidate.Currency {
			continue
		}
		if !amountInBand(record.Amount, candidate.AbsoluteAmount()) {
			continue
		}
		selected = append(selected, candidate)
	}

	if len(selected) > config.MaxCandidatesPerRecord {
		sort.Slice(selected, func(i, j int) bool {
			di := absDays(selected[i].Date, target)
			dj := absDays(selected[j].Date, target)
			if di != dj {
				return di < dj
			}
			return selected[i].ID < selected[j].ID
		})
		selected = selected[:config.MaxCandidatesPerRecord]
	}

	return selected
}

func amountInBand(expected, actual decimal.Decimal) bool {
	if expected.IsZero() {
		return actual.IsZero()
	}
	deviation := actual.Sub(expected).Abs().Div(expected.Abs())
	return deviation.LessThanOrEqual(maxAmountDeviation)
}

func daysBetween(from, to time.Time) int {
	return int(to.Truncate(24*time.Hour).Sub(from.Truncate(24*time.Hour)).Hours() / 24)
}

func absDays(a, b time.Time) int {
	d := daysBetween(a, b)
	if d < 0 {
		return -d
	}
	return d
}
