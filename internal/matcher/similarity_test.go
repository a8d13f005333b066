package matcher

import (
	"testing"
	"time"

	"settlement-matching-service/internal/models"

	"github.com/shopspring/decimal"
)

func testCandidate(amount float64, date time.Time) *models.TransactionCandidate {
	return &models.TransactionCandidate{
		ID:       "txn-1",
		Amount:   decimal.NewFromFloat(amount),
		Currency: "USD",
		Date:     date,
	}
}

func TestAmountScore(t *testing.T) {
	config := DefaultConfig()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		expected float64
		actual   float64
		want     float64
	}{
		{"exact match", 100.00, 100.00, 1.0},
		{"within one cent", 100.00, 100.01, 1.0},
		{"within one percent", 100.00, 100.80, 0.98},
		{"within tolerance", 100.00, 102.00, 0.95},
		{"fifteen percent off", 1500.00, 1275.00, 0.50 * (0.25 - 0.15) / 0.15},
		{"beyond scoring band", 100.00, 130.00, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := amountScore(decimal.NewFromFloat(tt.expected), testCandidate(tt.actual, date), config)
			if diff := got.Score - tt.want; diff > 0.001 || diff < -0.001 {
				t.Errorf("amountScore(%v, %v) = %.4f, want %.4f", tt.expected, tt.actual, got.Score, tt.want)
			}
		})
	}
}

func TestAmountScoreOutgoingSignPenalty(t *testing.T) {
	config := DefaultConfig()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	incoming := amountScore(decimal.NewFromFloat(100.00), testCandidate(100.00, date), config)
	outgoing := amountScore(decimal.NewFromFloat(100.00), testCandidate(-100.00, date), config)

	if incoming.Score != 1.0 {
		t.Errorf("Expected incoming exact match to score 1.0, got %.4f", incoming.Score)
	}
	want := 1.0 * config.NegativeSignPenalty
	if outgoing.Score != want {
		t.Errorf("Expected outgoing exact match to score %.4f, got %.4f", want, outgoing.Score)
	}
}

func TestDateScore(t *testing.T) {
	config := DefaultConfig()
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	record := &models.SourceRecord{
		ID:        "inv-1",
		Type:      models.RecordTypeInvoice,
		Amount:    decimal.NewFromFloat(100),
		IssueDate: issue,
	}

	tests := []struct {
		name   string
		txDate time.Time
		want   float64
	}{
		{"same day", issue, 1.0},
		{"three days late", issue.AddDate(0, 0, 3), 0.95},
		{"one week late", issue.AddDate(0, 0, 7), 0.90},
		{"one month late", issue.AddDate(0, 0, 30), 0.70},
		{"one quarter late", issue.AddDate(0, 0, 90), 0.40},
		{"half a year late", issue.AddDate(0, 0, 180), 0.25},
		{"a year late", issue.AddDate(0, 0, 365), 0.10},
		{"beyond a year", issue.AddDate(0, 0, 400), 0.02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dateScore(record, testCandidate(100, tt.txDate), config)
			if got.Score != tt.want {
				t.Errorf("dateScore(%s) = %.2f, want %.2f", tt.txDate.Format("2006-01-02"), got.Score, tt.want)
			}
			if got.HardZero {
				t.Error("Late settlement must not be a hard zero")
			}
		})
	}
}

func TestDateScorePredatingIssueIsHardZero(t *testing.T) {
	config := DefaultConfig()
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	record := &models.SourceRecord{
		ID:        "inv-1",
		Type:      models.RecordTypeInvoice,
		Amount:    decimal.NewFromFloat(100),
		IssueDate: issue,
	}

	got := dateScore(record, testCandidate(100, issue.AddDate(0, 0, -1)), config)
	if !got.HardZero || got.Score != 0 {
		t.Errorf("Transaction before issue date must be a hard zero, got score=%.2f hardZero=%v", got.Score, got.HardZero)
	}
}

func TestDateScoreEarlySettlementAgainstDueDate(t *testing.T) {
	config := DefaultConfig()
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	record := &models.SourceRecord{
		ID:        "inv-1",
		Type:      models.RecordTypeInvoice,
		Amount:    decimal.NewFromFloat(100),
		IssueDate: issue,
		DueDate:   &due,
	}

	// Five days early is inside the grace window and scores by distance.
	early := dateScore(record, testCandidate(100, due.AddDate(0, 0, -5)), config)
	if early.Score != 0.90 {
		t.Errorf("Early settlement within grace should score 0.90, got %.2f", early.Score)
	}

	// Ten days early is outside the grace window.
	tooEarly := dateScore(record, testCandidate(100, due.AddDate(0, 0, -10)), config)
	if tooEarly.Score != 0 {
		t.Errorf("Settlement beyond the grace window should score 0, got %.2f", tooEarly.Score)
	}
	if tooEarly.HardZero {
		t.Error("Grace-window rejection is not the temporal hard zero")
	}
}

func TestCounterpartyScore(t *testing.T) {
	config := DefaultConfig()

	tests := []struct {
		name      string
		record    string
		candidate string
		want      float64
	}{
		{"exact", "Acme Corp", "Acme Corp", 1.0},
		{"case and suffix insensitive", "ACME CORP LLC", "acme corp", 1.0},
		{"parenthetical stripped", "Acme Corp (account 4452)", "Acme Corp", 1.0},
		{"dissimilar below floor", "Acme Corp", "Globex Industries", 0.0},
		{"empty candidate", "Acme Corp", "", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := counterpartyScore(tt.record, tt.candidate, config)
			if got.Score != tt.want {
				t.Errorf("counterpartyScore(%q, %q) = %.2f, want %.2f", tt.record, tt.candidate, got.Score, tt.want)
			}
		})
	}
}

func TestCounterpartyScoreFuzzyAboveFloor(t *testing.T) {
	config := DefaultConfig()

	got := counterpartyScore("Acme Corporation", "Acme Corporatoin", config)
	if got.Score < config.CounterpartyMinRatio {
		t.Errorf("Transposition should stay above the similarity floor, got %.2f", got.Score)
	}
}

func TestCounterpartyScoreWalletAddresses(t *testing.T) {
	config := DefaultConfig()

	full := "1234abcd9900aabb1122ccdd5566ef90"
	shortened := "1234abcd...5566ef90"

	tests := []struct {
		name      string
		record    string
		candidate string
		want      float64
	}{
		{"identical full addresses", full, full, 1.0},
		{"shortened form of same address", shortened, full, 1.0},
		{"only prefix agrees", "1234abcd...00000000", full, 0.7},
		{"different addresses", "ffffeeee...ddddcccc", full, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := counterpartyScore(tt.record, tt.candidate, config)
			if got.Score != tt.want {
				t.Errorf("counterpartyScore(%q, %q) = %.2f, want %.2f", tt.record, tt.candidate, got.Score, tt.want)
			}
		})
	}
}

func TestPatternScore(t *testing.T) {
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	record := &models.SourceRecord{
		ID:           "inv-1",
		Type:         models.RecordTypeInvoice,
		Amount:       decimal.NewFromFloat(100),
		IssueDate:    issue,
		Counterparty: "Acme Corp",
		Reference:    "INV-42",
	}

	t.Run("verbatim reference", func(t *testing.T) {
		candidate := testCandidate(100, issue)
		candidate.Description = "Wire ref INV-42"
		got := patternScore(record, candidate)
		if got.Score != 1.0 {
			t.Errorf("Verbatim reference should score 1.0, got %.2f", got.Score)
		}
	})

	t.Run("digit run fragment", func(t *testing.T) {
		numbered := *record
		numbered.Reference = "PAY-445566"
		candidate := testCandidate(100, issue)
		candidate.Description = "Transfer 445566 settlement"
		got := patternScore(&numbered, candidate)
		if got.Score < 0.8 {
			t.Errorf("Long numeric fragment should score at least 0.8, got %.2f", got.Score)
		}
	})

	t.Run("no overlap", func(t *testing.T) {
		candidate := testCandidate(100, issue)
		candidate.Description = "Utility bill autopay"
		got := patternScore(record, candidate)
		if got.Score > 0.2 {
			t.Errorf("Unrelated description should score near zero, got %.2f", got.Score)
		}
	})
}

func TestNormalizeCounterparty(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Corp LLC", "acme corp"},
		{"ACME  CORP", "acme corp"},
		{"Acme Corp (conta 4452)", "acme corp"},
		{"Favorecido: Acme Corp Ltda", "acme corp"},
		{"  ", ""},
	}

	for _, tt := range tests {
		if got := normalizeCounterparty(tt.in); got != tt.want {
			t.Errorf("normalizeCounterparty(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKeywordTokens(t *testing.T) {
	tokens := keywordTokens("Wire transfer to Acme Corp ref 20260301 March")

	if tokens["wire"] || tokens["transfer"] || tokens["ref"] || tokens["march"] {
		t.Error("Stopwords must be dropped from keyword tokens")
	}
	if tokens["20260301"] {
		t.Error("Pure numeric tokens must be dropped")
	}
	if !tokens["acme"] || !tokens["corp"] {
		t.Errorf("Expected name tokens to survive, got %v", tokens)
	}
}

func TestJaccard(t *testing.T) {
	a := map[string]bool{"acme": true, "corp": true, "consulting": true}
	b := map[string]bool{"acme": true, "corp": true, "services": true}

	got := jaccard(a, b)
	want := 2.0 / 4.0
	if got != want {
		t.Errorf("jaccard = %.2f, want %.2f", got, want)
	}

	if jaccard(a, map[string]bool{}) != 0 {
		t.Error("Jaccard against an empty set must be 0")
	}
}
