package verify

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"settlement-matching-service/internal/matcher"
	"settlement-matching-service/internal/models"
	"settlement-matching-service/pkg/logger"

	"github.com/panjf2000/ants/v2"
)

// Batcher partitions MEDIUM-tier match results into fixed-size batches and
// dispatches them concurrently to the verification service over a bounded
// worker pool. Verdicts adjust scores and re-derive tiers; a failed batch
// passes its original results through unchanged.
type Batcher struct {
	verifier Verifier
	config   *matcher.Config
	logger   logger.Logger
}

// NewBatcher creates a batcher using the pool size and batch size from the
// matching configuration.
func NewBatcher(verifier Verifier, config *matcher.Config) *Batcher {
	if config == nil {
		config = matcher.DefaultConfig()
	}

	return &Batcher{
		verifier: verifier,
		config:   config,
		logger:   logger.GetGlobalLogger().WithComponent("verify_batcher"),
	}
}

// Refine verifies the given MEDIUM-band results against the external
// service. The records and candidates maps provide the row data behind
// each result for summary building.
//
// The returned slice is always sorted by descending score (ties on pair
// ID) so downstream persistence sees a deterministic order regardless of
// worker scheduling. Input results are never mutated.
//
// Cancellation is honored between batches only: in-flight batches finish
// to avoid partially verified scoring state.
func (b *Batcher) Refine(
	ctx context.Context,
	results []*models.MatchResult,
	records map[string]*models.SourceRecord,
	candidates map[string]*models.TransactionCandidate,
	tracker *logger.RunTracker,
) []*models.MatchResult {

	refined := make([]*models.MatchResult, len(results))
	copy(refined, results)

	if b.verifier == nil || len(results) == 0 {
		sortResults(refined)
		return refined
	}

	byPair := make(map[string]int, len(results))
	for i, result := range results {
		byPair[result.PairID()] = i
	}

	batches := b.partition(results)

	pool, err := ants.NewPool(b.config.VerificationWorkers)
	if err != nil {
		b.logger.WithError(err).Warn("Failed to create verification worker pool, skipping verification")
		sortResults(refined)
		return refined
	}
	defer pool.Release()

	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, batch := range batches {
		if ctx.Err() != nil {
			b.logger.WithField("remaining_batches", len(batches)-i).Warn("Run cancelled, skipping remaining verification batches")
			break
		}

		batchNum := i
		batchResults := batch

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			verdicts := b.reviewBatch(ctx, batchNum, batchResults, records, candidates)

			mu.Lock()
			for _, verdict := range verdicts {
				idx, ok := byPair[verdict.PairID]
				if !ok {
					continue
				}
				refined[idx] = b.applyVerdict(results[idx], verdict)
			}
			mu.Unlock()

			if tracker != nil {
				tracker.Add(int64(len(batchResults)))
			}
		})
		if submitErr != nil {
			wg.Done()
			b.logger.WithError(submitErr).WithField("batch", batchNum).Warn("Failed to submit verification batch, keeping original scores")
		}
	}

	wg.Wait()

	sortResults(refined)
	return refined
}

// partition splits results into batches of the configured size.
func (b *Batcher) partition(results []*models.MatchResult) [][]*models.MatchResult {
	size := b.config.VerificationBatchSize
	var batches [][]*models.MatchResult

	for start := 0; start < len(results); start += size {
		end := start + size
		if end > len(results) {
			end = len(results)
		}
		batches = append(batches, results[start:end])
	}

	return batches
}

// reviewBatch sends one batch to the service. Any error degrades the batch
// to its pre-verification scores by returning no verdicts.
func (b *Batcher) reviewBatch(
	ctx context.Context,
	batchNum int,
	batch []*models.MatchResult,
	records map[string]*models.SourceRecord,
	candidates map[string]*models.TransactionCandidate,
) []Verdict {

	requests := make([]PairRequest, 0, len(batch))
	for _, result := range batch {
		record, okRecord := records[result.SourceID]
		candidate, okCandidate := candidates[result.TransactionID]
		if !okRecord || !okCandidate {
			continue
		}
		requests = append(requests, BuildPairRequest(result, record, candidate))
	}

	if len(requests) == 0 {
		return nil
	}

	verdicts, err := b.verifier.Review(ctx, requests)
	if err != nil {
		b.logger.WithError(err).WithFields(logger.Fields{
			"batch": batchNum,
			"pairs": len(requests),
		}).Warn("Verification batch failed, keeping pre-verification scores")
		return nil
	}

	return verdicts
}

// applyVerdict recomputes a result from the service's judgment. Approval
// with real confidence promotes the pair up to the verified score cap;
// anything else demotes it to half its algorithmic score in tier LOW.
func (b *Batcher) applyVerdict(original *models.MatchResult, verdict Verdict) *models.MatchResult {
	adjusted := *original
	adjusted.Verified = true

	if verdict.IsMatch && verdict.Confidence > 0.6 {
		score := verdict.AdjustedScore
		if score > b.config.VerifiedScoreCap {
			score = b.config.VerifiedScoreCap
		}
		if score < 0 {
			score = 0
		}

		adjusted.Score = score
		adjusted.Tier, adjusted.AutoMatch = b.config.Classify(score)
		if verdict.Reasoning != "" {
			adjusted.Explanation += "; verified: " + Sanitize(verdict.Reasoning)
		}
		return &adjusted
	}

	adjusted.Score = original.Score * 0.5
	adjusted.Tier = models.TierLow
	adjusted.AutoMatch = false
	if verdict.Reasoning != "" {
		adjusted.Explanation += "; rejected by verification: " + Sanitize(verdict.Reasoning)
	} else {
		adjusted.Explanation += fmt.Sprintf("; rejected by verification (confidence %.2f)", verdict.Confidence)
	}

	return &adjusted
}

func sortResults(results []*models.MatchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PairID() < results[j].PairID()
	})
}
