package store

import (
	"context"

	"settlement-matching-service/internal/models"
	apperrors "settlement-matching-service/pkg/errors"

	"github.com/jackc/pgx/v5"
)

// ReplacePendingMatches supersedes the pending suggestions for the given
// source records: stale pending rows from earlier runs are deleted, then
// the fresh batch is upserted, all in one transaction. Rows already
// reviewed (approved or rejected) are left untouched.
func (s *Store) ReplacePendingMatches(ctx context.Context, sourceIDs []string, matches []*models.PendingMatch) error {
	if len(sourceIDs) == 0 {
		return nil
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		deleteQuery := `
			DELETE FROM pending_matches
			WHERE source_id = ANY($1) AND status = 'pending'
		`
		if _, err := tx.Exec(ctx, deleteQuery, sourceIDs); err != nil {
			return apperrors.PersistenceError(apperrors.CodeWriteFailed, "delete stale pending matches", err)
		}

		insertQuery := `
			INSERT INTO pending_matches
				(source_id, transaction_id, score, confidence_tier, match_type,
				 explanation, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (source_id, transaction_id) DO UPDATE SET
				score = EXCLUDED.score,
				confidence_tier = EXCLUDED.confidence_tier,
				match_type = EXCLUDED.match_type,
				explanation = EXCLUDED.explanation,
				updated_at = EXCLUDED.updated_at
		`
		for _, match := range matches {
			if _, err := tx.Exec(ctx, insertQuery,
				match.SourceID,
				match.TransactionID,
				match.Score,
				string(match.Tier),
				string(match.MatchType),
				match.Explanation,
				string(match.Status),
				match.CreatedAt,
				match.UpdatedAt,
			); err != nil {
				return apperrors.PersistenceError(apperrors.CodeWriteFailed, "insert pending match", err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"source_records": len(sourceIDs),
		"pending_rows":   len(matches),
	}).Debug("Replaced pending matches")

	return nil
}
