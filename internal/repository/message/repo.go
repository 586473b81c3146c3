package message

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"

	"github.com/campushub/messaging/internal/model"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNoMessagesFound = errors.New("no messages found")

	// ErrStatusConflict is returned when a compare-and-swap update finds
	// the persisted status no longer matches the one read at the start of
	// the operation. The caller lost a concurrent race and must not retry
	// blindly.
	ErrStatusConflict = errors.New("message status conflict")
)

// Filter narrows GetMessages results. Zero values mean "any".
type Filter struct {
	Status        model.MessageStatus
	Type          model.MessageType
	Priority      model.MessagePriority
	ScheduledFrom *time.Time
	ScheduledTo   *time.Time
	Limit         int
}

// Repository provides access to the messages table.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new message repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

const messageColumns = `
		id, from_addr, to_addrs, cc_addrs, bcc_addrs, subject, body, html_body,
		attachments, type, status, priority, retry_count, max_retries,
		scheduled_at, next_attempt_at, metadata, created_at, updated_at`

// CreateMessage inserts a new message and returns its ID.
func (r *Repository) CreateMessage(ctx context.Context, m model.Message) (uuid.UUID, error) {
	query := `
		INSERT INTO messages (
		    from_addr, to_addrs, cc_addrs, bcc_addrs, subject, body, html_body,
		    attachments, type, status, priority, retry_count, max_retries,
		    scheduled_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id;
    `

	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal attachments: %w", err)
	}

	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	err = r.db.Master.QueryRowContext(
		ctx, query,
		m.From, pq.Array(m.To), pq.Array(m.CC), pq.Array(m.BCC),
		m.Subject, m.Body, m.HTMLBody, attachments,
		m.Type, m.Status, m.Priority, m.RetryCount, m.MaxRetries,
		m.ScheduledAt, metadata,
	).Scan(&m.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create message: %w", err)
	}

	return m.ID, nil
}

// GetMessageByID retrieves a single message.
func (r *Repository) GetMessageByID(ctx context.Context, id uuid.UUID) (model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1;
    `

	m, err := scanMessage(r.db.Master.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Message{}, ErrMessageNotFound
		}

		return model.Message{}, fmt.Errorf("failed to get message: %w", err)
	}

	return m, nil
}

// GetMessages retrieves messages matching the filter, newest first.
func (r *Repository) GetMessages(ctx context.Context, filter Filter) ([]model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR type = $2)
		  AND ($3 = '' OR priority = $3)
		  AND ($4::timestamptz IS NULL OR scheduled_at >= $4)
		  AND ($5::timestamptz IS NULL OR scheduled_at <= $5)
		ORDER BY created_at DESC
		LIMIT $6;
    `

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(
		ctx, query,
		string(filter.Status), string(filter.Type), string(filter.Priority),
		filter.ScheduledFrom, filter.ScheduledTo, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	if len(messages) == 0 {
		return nil, ErrNoMessagesFound
	}

	return messages, nil
}

// GetDueMessages retrieves messages eligible for a dispatch attempt:
// pending or scheduled messages whose scheduled time has passed, plus
// failed messages that still have retry budget, all gated by the
// per-message backoff deadline.
func (r *Repository) GetDueMessages(ctx context.Context, now time.Time, limit int) ([]model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (
		    (status IN ('PENDING', 'SCHEDULED') AND (scheduled_at IS NULL OR scheduled_at <= $1))
		    OR (status = 'FAILED' AND retry_count <= max_retries)
		)
		AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		ORDER BY
		    CASE priority
		        WHEN 'URGENT' THEN 0
		        WHEN 'HIGH' THEN 1
		        WHEN 'NORMAL' THEN 2
		        ELSE 3
		    END,
		    created_at
		LIMIT $2;
    `

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// UpdateMessageState applies a state transition with compare-and-swap
// semantics: the row is updated only if its persisted status still equals
// expected. Returns ErrStatusConflict when a concurrent dispatch won the
// race, ErrMessageNotFound when the message does not exist.
func (r *Repository) UpdateMessageState(
	ctx context.Context,
	id uuid.UUID,
	expected, status model.MessageStatus,
	retryCount int,
	nextAttemptAt *time.Time,
) error {
	query := `
		UPDATE messages
		SET status = $1, retry_count = $2, next_attempt_at = $3, updated_at = now()
		WHERE id = $4 AND status = $5;
    `

	res, err := r.db.ExecContext(ctx, query, status, retryCount, nextAttemptAt, id, expected)
	if err != nil {
		return fmt.Errorf("failed to update message state: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		if _, err := r.GetMessageByID(ctx, id); errors.Is(err, ErrMessageNotFound) {
			return ErrMessageNotFound
		}

		return ErrStatusConflict
	}

	return nil
}

// DeleteMessage removes a message permanently.
func (r *Repository) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM messages
		WHERE id = $1;
    `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrMessageNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (model.Message, error) {
	var (
		m           model.Message
		to, cc, bcc pq.StringArray
		attachments []byte
		metadata    []byte
	)

	err := row.Scan(
		&m.ID, &m.From, &to, &cc, &bcc, &m.Subject, &m.Body, &m.HTMLBody,
		&attachments, &m.Type, &m.Status, &m.Priority, &m.RetryCount, &m.MaxRetries,
		&m.ScheduledAt, &m.NextAttemptAt, &metadata, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return model.Message{}, err
	}

	m.To, m.CC, m.BCC = to, cc, bcc

	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return model.Message{}, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return model.Message{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return m, nil
}

func collectMessages(rows *sql.Rows) ([]model.Message, error) {
	var messages []model.Message

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}

		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}
