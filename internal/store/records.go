package store

import (
	"context"
	"time"

	"settlement-matching-service/internal/models"
	apperrors "settlement-matching-service/pkg/errors"
)

// ListUnmatchedSourceRecords returns the source records of the given type
// that have no applied link yet. When ids is non-empty the result is
// restricted to those records (partial run).
func (s *Store) ListUnmatchedSourceRecords(ctx context.Context, recordType models.RecordType, ids []string) ([]*models.SourceRecord, error) {
	query := `
		SELECT id, record_type, amount, currency, issue_date, due_date,
		       COALESCE(counterparty, ''), COALESCE(reference, ''),
		       COALESCE(entity, ''), linked_transaction_id
		FROM source_records
		WHERE linked_transaction_id IS NULL
		  AND record_type = $1
		  AND ($2::text[] IS NULL OR id = ANY($2))
		ORDER BY issue_date, id
	`

	var idFilter interface{}
	if len(ids) > 0 {
		idFilter = ids
	}

	rows, err := s.db.Query(ctx, query, recordType.String(), idFilter)
	if err != nil {
		return nil, apperrors.PersistenceError(apperrors.CodeQueryFailed, "list source records", err)
	}
	defer rows.Close()

	var records []*models.SourceRecord
	for rows.Next() {
		var record models.SourceRecord
		if err := rows.Scan(
			&record.ID,
			&record.Type,
			&record.Amount,
			&record.Currency,
			&record.IssueDate,
			&record.DueDate,
			&record.Counterparty,
			&record.Reference,
			&record.Entity,
			&record.LinkedTransactionID,
		); err != nil {
			return nil, apperrors.PersistenceError(apperrors.CodeQueryFailed, "scan source record", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.PersistenceError(apperrors.CodeQueryFailed, "iterate source records", err)
	}

	return records, nil
}

// ListCandidateTransactions returns the windowed candidate pool: unlinked
// ledger transactions no older than the lookback, optionally filtered by
// amount sign. Already-linked transactions are excluded regardless of which
// record type linked them.
func (s *Store) ListCandidateTransactions(ctx context.Context, lookbackDays int, sign models.SignFilter) ([]*models.TransactionCandidate, error) {
	query := `
		SELECT id, amount, currency, tx_date, description,
		       COALESCE(entity_label, ''), COALESCE(origin, ''),
		       COALESCE(destination, ''), source_record_id
		FROM ledger_transactions
		WHERE source_record_id IS NULL
		  AND tx_date >= $1
		  AND ($2 = 'any'
		       OR ($2 = 'incoming' AND amount > 0)
		       OR ($2 = 'outgoing' AND amount < 0))
		ORDER BY tx_date, id
	`

	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	rows, err := s.db.Query(ctx, query, cutoff, string(sign))
	if err != nil {
		return nil, apperrors.PersistenceError(apperrors.CodeQueryFailed, "list candidate transactions", err)
	}
	defer rows.Close()

	var candidates []*models.TransactionCandidate
	for rows.Next() {
		var candidate models.TransactionCandidate
		if err := rows.Scan(
			&candidate.ID,
			&candidate.Amount,
			&candidate.Currency,
			&candidate.Date,
			&candidate.Description,
			&candidate.EntityLabel,
			&candidate.Origin,
			&candidate.Destination,
			&candidate.SourceRecordID,
		); err != nil {
			return nil, apperrors.PersistenceError(apperrors.CodeQueryFailed, "scan candidate transaction", err)
		}
		candidates = append(candidates, &candidate)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.PersistenceError(apperrors.CodeQueryFailed, "iterate candidate transactions", err)
	}

	return candidates, nil
}
