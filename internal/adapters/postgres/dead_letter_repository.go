package postgres

import (
	"EkgPlatform/internal/core/domain"
	"EkgPlatform/internal/core/ports"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

type deadLetterRepository struct {
	db     *DB
	secSvc ports.SecurityPort
	log    zerolog.Logger
}

var _ ports.DeadLetterRepository = (*deadLetterRepository)(nil)

// NewDeadLetterRepository stores dead letters with their bodies encrypted.
// Each body is bound to its record id so it cannot be swapped between rows.
func NewDeadLetterRepository(db *DB, secSvc ports.SecurityPort, baseLogger *zerolog.Logger) ports.DeadLetterRepository {
	return &deadLetterRepository{
		db:     db,
		secSvc: secSvc,
		log:    baseLogger.With().Str("component", "dead_letter_repo").Logger(),
	}
}

const deadLetterColumns = `id, event_name, queue_name, message_id, body, reason, error, attempts, failed_at`

func (r *deadLetterRepository) Save(ctx context.Context, dl *domain.DeadLetter) error {
	encBody, err := r.secSvc.Encrypt(dl.Body, dl.ID[:])
	if err != nil {
		r.log.Error().Err(err).Str("dead_letter_id", dl.ID.String()).Msg("Failed to encrypt dead letter body")
		return err
	}

	query := `INSERT INTO dead_letters (` + deadLetterColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.pool.Exec(ctx, query,
		dl.ID,
		dl.EventName,
		dl.Queue,
		dl.MessageID,
		encBody,
		string(dl.Reason),
		dl.Error,
		dl.Attempts,
		dl.FailedAt,
	)
	if err != nil {
		r.log.Error().Err(err).Str("dead_letter_id", dl.ID.String()).Msg("Failed to insert dead letter")
		return fmt.Errorf("inserting dead letter: %w", err)
	}
	return nil
}

func (r *deadLetterRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE id = $1`
	dl, err := r.scan(r.db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.Error().Err(err).Str("dead_letter_id", id.String()).Msg("Failed to get dead letter")
		return nil, err
	}
	return dl, nil
}

func (r *deadLetterRepository) List(ctx context.Context, limit int) ([]*domain.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters ORDER BY failed_at DESC LIMIT $1`
	rows, err := r.db.pool.Query(ctx, query, limit)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to list dead letters")
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DeadLetter
	for rows.Next() {
		dl, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

func (r *deadLetterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		r.log.Error().Err(err).Str("dead_letter_id", id.String()).Msg("Failed to delete dead letter")
	}
	return err
}

// scan reads one row and decrypts its body.
func (r *deadLetterRepository) scan(row pgx.Row) (*domain.DeadLetter, error) {
	var (
		dl      domain.DeadLetter
		encBody []byte
		reason  string
	)
	err := row.Scan(
		&dl.ID,
		&dl.EventName,
		&dl.Queue,
		&dl.MessageID,
		&encBody,
		&reason,
		&dl.Error,
		&dl.Attempts,
		&dl.FailedAt,
	)
	if err != nil {
		return nil, err
	}
	dl.Reason = domain.DeadLetterReason(reason)

	dl.Body, err = r.secSvc.Decrypt(encBody, dl.ID[:])
	if err != nil {
		r.log.Error().Err(err).Str("dead_letter_id", dl.ID.String()).Msg("Failed to decrypt dead letter body")
		return nil, err
	}
	return &dl, nil
}
