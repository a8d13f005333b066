// Package engine orchestrates a matching run end to end: it loads
// unmatched records and windowed candidates, scores each record against
// its plausible candidates, routes ambiguous results through external
// verification, and applies or persists the surviving matches.
package engine

import (
	"context"
	"sort"
	"time"

	"settlement-matching-service/internal/matcher"
	"settlement-matching-service/internal/models"
	apperrors "settlement-matching-service/pkg/errors"
	"settlement-matching-service/pkg/logger"

	"github.com/google/uuid"
)

// CandidateProvider loads the matching inputs from storage.
type CandidateProvider interface {
	ListUnmatchedSourceRecords(ctx context.Context, recordType models.RecordType, ids []string) ([]*models.SourceRecord, error)
	ListCandidateTransactions(ctx context.Context, lookbackDays int, sign models.SignFilter) ([]*models.TransactionCandidate, error)
}

// MatchStore persists run outcomes.
type MatchStore interface {
	ApplyLink(ctx context.Context, result *models.MatchResult, record *models.SourceRecord, actor, runID string) error
	ReplacePendingMatches(ctx context.Context, sourceIDs []string, matches []*models.PendingMatch) error
}

// Refiner routes the ambiguous band through external verification. The
// verify.Batcher satisfies this; tests stub it.
type Refiner interface {
	Refine(ctx context.Context, results []*models.MatchResult, records map[string]*models.SourceRecord, candidates map[string]*models.TransactionCandidate, tracker *logger.RunTracker) []*models.MatchResult
}

// Options controls a single matching run.
type Options struct {
	// RecordType selects which kind of source record to match.
	RecordType models.RecordType

	// RecordIDs restricts the run to the given records. Empty means all
	// unmatched records of the type.
	RecordIDs []string

	// AutoApply enables automatic linking of high-confidence matches.
	// When false every surviving match is persisted for review instead.
	AutoApply bool

	// DryRun scores and verifies but writes nothing.
	DryRun bool

	// Actor is recorded in audit entries for applied links.
	Actor string

	// ProgressInterval is how often the run trackers log progress. Zero
	// disables interval logging.
	ProgressInterval time.Duration
}

// RunReport is the full outcome of a matching run: the counter summary
// plus the individual links applied and suggestions queued, for report
// rendering.
type RunReport struct {
	Summary    *models.RunSummary     `json:"summary"`
	RecordType models.RecordType      `json:"record_type"`
	DryRun     bool                   `json:"dry_run"`
	Applied    []*models.MatchResult  `json:"applied,omitempty"`
	Pending    []*models.PendingMatch `json:"pending,omitempty"`
	Elapsed    time.Duration          `json:"elapsed"`
}

// Engine runs the matching pipeline.
type Engine struct {
	provider CandidateProvider
	store    MatchStore
	scorer   *matcher.Scorer
	refiner  Refiner
	config   *matcher.Config
	logger   logger.Logger
}

// New creates an engine. refiner may be nil, in which case the ambiguous
// band is persisted for review without external verification.
func New(provider CandidateProvider, store MatchStore, scorer *matcher.Scorer, refiner Refiner) *Engine {
	return &Engine{
		provider: provider,
		store:    store,
		scorer:   scorer,
		refiner:  refiner,
		config:   scorer.Config(),
		logger:   logger.GetGlobalLogger().WithComponent("engine"),
	}
}

// Run executes one matching run and returns its report. Storage
// failures while loading inputs or applying links abort the run with the
// partial report computed so far, so links committed before the failure
// stay visible to the caller; invalid candidate rows and linking
// conflicts are skipped and counted.
func (e *Engine) Run(ctx context.Context, opts Options) (*RunReport, error) {
	runID := uuid.NewString()
	started := time.Now()
	log := e.logger.WithField("run_id", runID)

	if opts.Actor == "" {
		opts.Actor = "matchd"
	}

	report := &RunReport{
		Summary:    &models.RunSummary{RunID: runID},
		RecordType: opts.RecordType,
		DryRun:     opts.DryRun,
	}
	summary := report.Summary

	records, err := e.provider.ListUnmatchedSourceRecords(ctx, opts.RecordType, opts.RecordIDs)
	if err != nil {
		report.Elapsed = time.Since(started)
		return report, err
	}
	summary.Total = len(records)
	if len(records) == 0 {
		log.Info("No unmatched records to process")
		report.Elapsed = time.Since(started)
		return report, nil
	}

	pool, err := e.provider.ListCandidateTransactions(ctx, opts.RecordType.LookbackDays(), opts.RecordType.ExpectedSign())
	if err != nil {
		report.Elapsed = time.Since(started)
		return report, err
	}

	candidates := e.validCandidates(pool, log)

	log.WithFields(logger.Fields{
		"record_type": opts.RecordType.String(),
		"records":     len(records),
		"candidates":  len(candidates),
		"auto_apply":  opts.AutoApply,
		"dry_run":     opts.DryRun,
	}).Info("Starting matching run")

	recordsByID := make(map[string]*models.SourceRecord, len(records))
	for _, record := range records {
		recordsByID[record.ID] = record
	}
	candidatesByID := make(map[string]*models.TransactionCandidate, len(candidates))
	for _, candidate := range candidates {
		candidatesByID[candidate.ID] = candidate
	}

	index := newCandidateIndex(candidates)

	scoreTracker := logger.NewRunTracker("scoring", int64(len(records)), opts.ProgressInterval, log)
	resultsByRecord := make(map[string][]*models.MatchResult, len(records))
	var ambiguous []*models.MatchResult

	for _, record := range records {
		if err := record.Validate(); err != nil {
			log.WithError(err).WithField("source_id", record.ID).Warn("Skipping invalid source record")
			summary.Skipped++
			scoreTracker.Add(1)
			continue
		}

		scored := e.scorer.ScoreCandidates(record, index.Select(record, e.config))
		resultsByRecord[record.ID] = scored
		for _, result := range scored {
			if result.Tier == models.TierMedium {
				ambiguous = append(ambiguous, result)
			}
		}
		scoreTracker.Add(1)
	}
	scoreTracker.Complete()

	if len(ambiguous) > 0 && e.refiner != nil {
		verifyTracker := logger.NewRunTracker("verification", int64(len(ambiguous)), opts.ProgressInterval, log)
		refined := e.refiner.Refine(ctx, ambiguous, recordsByID, candidatesByID, verifyTracker)
		verifyTracker.Complete()
		e.mergeRefined(resultsByRecord, refined)
	}

	if err := e.decide(ctx, opts, log, records, resultsByRecord, report); err != nil {
		report.Elapsed = time.Since(started)
		return report, err
	}

	report.Elapsed = time.Since(started)
	return report, nil
}

// validCandidates drops candidate rows that fail validation. A malformed
// ledger row spoils its own pairings only, never the run.
func (e *Engine) validCandidates(pool []*models.TransactionCandidate, log logger.Logger) []*models.TransactionCandidate {
	valid := make([]*models.TransactionCandidate, 0, len(pool))
	for _, candidate := range pool {
		if err := candidate.Validate(); err != nil {
			log.WithError(err).WithField("transaction_id", candidate.ID).Warn("Skipping invalid candidate transaction")
			continue
		}
		valid = append(valid, candidate)
	}
	return valid
}

// mergeRefined swaps verified results back into the per-record lists,
// re-sorting each affected record so demotions fall to the bottom.
func (e *Engine) mergeRefined(resultsByRecord map[string][]*models.MatchResult, refined []*models.MatchResult) {
	byPair := make(map[string]*models.MatchResult, len(refined))
	for _, result := range refined {
		byPair[result.PairID()] = result
	}

	for sourceID, results := range resultsByRecord {
		changed := false
		for i, result := range results {
			if replacement, ok := byPair[result.PairID()]; ok && replacement != result {
				results[i] = replacement
				changed = true
			}
		}
		if changed {
			sortByScore(results)
			resultsByRecord[sourceID] = results
		}
	}
}

// decide walks records in input order, applying high-confidence matches
// and collecting review suggestions. A transaction claimed earlier in the
// run is not offered to later records.
func (e *Engine) decide(
	ctx context.Context,
	opts Options,
	log logger.Logger,
	records []*models.SourceRecord,
	resultsByRecord map[string][]*models.MatchResult,
	report *RunReport,
) error {

	summary := report.Summary
	claimed := make(map[string]bool)
	var pendingSourceIDs []string
	var pending []*models.PendingMatch
	now := time.Now().UTC()

	for _, record := range records {
		results, ok := resultsByRecord[record.ID]
		if !ok {
			continue
		}
		pendingSourceIDs = append(pendingSourceIDs, record.ID)

		available := make([]*models.MatchResult, 0, len(results))
		for _, result := range results {
			if !claimed[result.TransactionID] && result.Tier != models.TierLow {
				available = append(available, result)
			}
		}
		if len(available) == 0 {
			summary.Skipped++
			continue
		}

		top := available[0]
		switch top.Tier {
		case models.TierHigh:
			summary.High++
		case models.TierMedium:
			summary.Medium++
		}

		if top.AutoMatch && opts.AutoApply {
			if opts.DryRun {
				log.WithFields(logger.Fields{
					"source_id":      record.ID,
					"transaction_id": top.TransactionID,
					"score":          top.Score,
				}).Info("Dry run: would auto-apply match")
				claimed[top.TransactionID] = true
				summary.AutoApplied++
				report.Applied = append(report.Applied, top)
				continue
			}

			err := e.store.ApplyLink(ctx, top, record, opts.Actor, summary.RunID)
			switch {
			case err == nil:
				claimed[top.TransactionID] = true
				summary.AutoApplied++
				report.Applied = append(report.Applied, top)
			case apperrors.IsConflict(err):
				log.WithFields(logger.Fields{
					"source_id":      record.ID,
					"transaction_id": top.TransactionID,
				}).Info("Match already linked, skipping")
				claimed[top.TransactionID] = true
				summary.Skipped++
			default:
				return err
			}
			continue
		}

		kept := available
		if len(kept) > e.config.MaxPendingPerRecord {
			kept = kept[:e.config.MaxPendingPerRecord]
		}
		for _, result := range kept {
			pending = append(pending, models.NewPendingMatch(result, now))
		}
		if len(kept) > 0 {
			claimed[kept[0].TransactionID] = true
		}
		summary.PendingReview++
	}

	report.Pending = pending
	if !opts.DryRun {
		if err := e.store.ReplacePendingMatches(ctx, pendingSourceIDs, pending); err != nil {
			return err
		}
	}

	log.WithFields(logger.Fields{
		"total":          summary.Total,
		"high":           summary.High,
		"medium":         summary.Medium,
		"auto_applied":   summary.AutoApplied,
		"pending_review": summary.PendingReview,
		"skipped":        summary.Skipped,
	}).Info("Matching run complete")

	return nil
}

func sortByScore(results []*models.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].TransactionID < results[j].TransactionID
	})
}
