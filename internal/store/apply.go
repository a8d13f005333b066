package store

import (
	"context"
	"time"

	"settlement-matching-service/internal/models"
	apperrors "settlement-matching-service/pkg/errors"
	"settlement-matching-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ApplyLink atomically establishes the bidirectional link between a source
// record and a transaction, writing the audit entry in the same
// transaction. The check-then-act on both rows runs under row-level locks
// so two concurrent runs cannot double-link either side.
//
// Linking an already-linked record or transaction returns a conflict error
// that callers treat as a benign no-op.
func (s *Store) ApplyLink(ctx context.Context, result *models.MatchResult, record *models.SourceRecord, actor, runID string) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var linkedTransactionID *string
		lockRecord := `
			SELECT linked_transaction_id FROM source_records
			WHERE id = $1
			FOR UPDATE
		`
		if err := tx.QueryRow(ctx, lockRecord, result.SourceID).Scan(&linkedTransactionID); err != nil {
			return apperrors.PersistenceError(apperrors.CodeQueryFailed, "lock source record", err)
		}
		if linkedTransactionID != nil {
			return apperrors.ConflictError(apperrors.CodeAlreadyLinked, result.SourceID)
		}

		var backRef *string
		lockTransaction := `
			SELECT source_record_id FROM ledger_transactions
			WHERE id = $1
			FOR UPDATE
		`
		if err := tx.QueryRow(ctx, lockTransaction, result.TransactionID).Scan(&backRef); err != nil {
			return apperrors.PersistenceError(apperrors.CodeQueryFailed, "lock ledger transaction", err)
		}
		if backRef != nil {
			return apperrors.ConflictError(apperrors.CodeAlreadyLinked, result.SourceID).
				WithContext("transaction_id", result.TransactionID)
		}

		updateRecord := `
			UPDATE source_records SET linked_transaction_id = $1 WHERE id = $2
		`
		if _, err := tx.Exec(ctx, updateRecord, result.TransactionID, result.SourceID); err != nil {
			return apperrors.PersistenceError(apperrors.CodeWriteFailed, "link source record", err)
		}

		updateTransaction := `
			UPDATE ledger_transactions SET source_record_id = $1 WHERE id = $2
		`
		if _, err := tx.Exec(ctx, updateTransaction, result.SourceID, result.TransactionID); err != nil {
			return apperrors.PersistenceError(apperrors.CodeWriteFailed, "link ledger transaction", err)
		}

		entry := models.AuditEntry{
			ID:            uuid.NewString(),
			RunID:         runID,
			SourceID:      result.SourceID,
			TransactionID: result.TransactionID,
			Action:        models.AuditActionAutoApplied,
			Score:         result.Score,
			Actor:         actor,
			Timestamp:     time.Now().UTC(),
		}
		if err := appendAudit(ctx, tx, &entry); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logger.Fields{
		"source_id":      result.SourceID,
		"transaction_id": result.TransactionID,
		"score":          result.Score,
	}).Info("Applied settlement link")

	// Display enrichment is cosmetic: the link above is the transaction of
	// record, so a failure here is logged and swallowed, never rolled back.
	s.enrichTransaction(ctx, result.TransactionID, record)

	return nil
}

// enrichTransaction copies display metadata from the source record onto
// the linked transaction on a best-effort basis.
func (s *Store) enrichTransaction(ctx context.Context, transactionID string, record *models.SourceRecord) {
	if record == nil {
		return
	}

	query := `
		UPDATE ledger_transactions
		SET display_counterparty = $1,
		    display_reference = $2
		WHERE id = $3
	`
	if _, err := s.db.Exec(ctx, query, record.Counterparty, record.Reference, transactionID); err != nil {
		s.logger.WithError(err).WithField("transaction_id", transactionID).
			Warn("Failed to enrich transaction display metadata")
	}
}

// AppendAudit writes a standalone audit entry outside of a link
// transaction, for example manual review actions.
func (s *Store) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return appendAudit(ctx, s.db, entry)
}

func appendAudit(ctx context.Context, q Querier, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_entries
			(id, run_id, source_id, transaction_id, action, score, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := q.Exec(ctx, query,
		entry.ID,
		entry.RunID,
		entry.SourceID,
		entry.TransactionID,
		string(entry.Action),
		entry.Score,
		entry.Actor,
		entry.Timestamp,
	); err != nil {
		return apperrors.PersistenceError(apperrors.CodeWriteFailed, "append audit entry", err)
	}
	return nil
}
