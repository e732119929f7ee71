package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/threadline/internal/models"
)

const messageColumns = `id, thread_id, role, parts, annotations, attachments, model, created_at`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func (s *MessageStore) Create(ctx context.Context, msg models.ChatMessage) (*models.ChatMessage, error) {
	// created_at falls back to clock_timestamp(), not now(): now() is frozen
	// for the whole transaction, which would give every row of a batch the
	// same timestamp.
	query := `
		INSERT INTO chat_messages (id, thread_id, role, parts, annotations, attachments, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, clock_timestamp()))
		RETURNING ` + messageColumns

	args, err := messageArgs(msg)
	if err != nil {
		return nil, err
	}
	out, err := scanMessage(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, wrapErr("insert message", err)
	}
	return out, nil
}

func (s *MessageStore) Upsert(ctx context.Context, msg models.ChatMessage) (*models.ChatMessage, error) {
	// id, thread_id and role are the message's identity; a conflicting
	// write only replaces its content.
	query := `
		INSERT INTO chat_messages (id, thread_id, role, parts, annotations, attachments, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, clock_timestamp()))
		ON CONFLICT (id) DO UPDATE SET
			parts       = EXCLUDED.parts,
			annotations = EXCLUDED.annotations,
			attachments = EXCLUDED.attachments,
			model       = EXCLUDED.model
		RETURNING ` + messageColumns

	args, err := messageArgs(msg)
	if err != nil {
		return nil, err
	}
	out, err := scanMessage(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, wrapErr("upsert message", err)
	}
	return out, nil
}

// CreateBatch sends every insert in one round trip inside one transaction,
// so either all messages land or none do.
func (s *MessageStore) CreateBatch(ctx context.Context, msgs []models.ChatMessage) ([]models.ChatMessage, error) {
	if len(msgs) == 0 {
		return []models.ChatMessage{}, nil
	}

	query := `
		INSERT INTO chat_messages (id, thread_id, role, parts, annotations, attachments, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, clock_timestamp()))
		RETURNING ` + messageColumns

	batch := &pgx.Batch{}
	for i, msg := range msgs {
		args, err := messageArgs(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		batch.Queue(query, args...)
	}

	out := make([]models.ChatMessage, 0, len(msgs))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for range msgs {
			m, err := scanMessage(br.QueryRow())
			if err != nil {
				return err
			}
			out = append(out, *m)
		}
		return br.Close()
	})
	if err != nil {
		return nil, wrapErr("insert messages", err)
	}
	return out, nil
}

func (s *MessageStore) ListByThread(ctx context.Context, threadID uuid.UUID) ([]models.ChatMessage, error) {
	return listMessages(ctx, s.pool, threadID)
}

func (s *MessageStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE id = $1`

	m, err := scanMessage(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (s *MessageStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chat_messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// DeleteAtAndAfter truncates a conversation from an edit point forward.
// The target and everything in its thread stamped at or after it goes,
// including messages that merely share its exact timestamp.
func (s *MessageStore) DeleteAtAndAfter(ctx context.Context, messageID uuid.UUID) (int64, error) {
	query := `
		DELETE FROM chat_messages m
		USING chat_messages target
		WHERE target.id = $1
		  AND m.thread_id = target.thread_id
		  AND m.created_at >= target.created_at`

	tag, err := s.pool.Exec(ctx, query, messageID)
	if err != nil {
		return 0, fmt.Errorf("delete messages after: %w", err)
	}
	return tag.RowsAffected(), nil
}

// listMessages returns a thread's messages in replay order. seq breaks
// timestamp ties so the order is stable.
func listMessages(ctx context.Context, q querier, threadID uuid.UUID) ([]models.ChatMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE thread_id = $1
		ORDER BY created_at ASC, seq ASC`

	rows, err := q.Query(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// messageArgs validates msg and lays it out as $1..$8 of an insert.
func messageArgs(msg models.ChatMessage) ([]any, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	parts := msg.Parts
	if parts == nil {
		parts = []json.RawMessage{}
	}
	partsJSON, err := jsonbParam(parts)
	if err != nil {
		return nil, fmt.Errorf("encode parts: %w", err)
	}
	annotationsJSON, err := jsonbParam(msg.Annotations)
	if err != nil {
		return nil, fmt.Errorf("encode annotations: %w", err)
	}
	attachmentsJSON, err := jsonbParam(msg.Attachments)
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}

	var createdAt *time.Time
	if !msg.CreatedAt.IsZero() {
		createdAt = &msg.CreatedAt
	}

	return []any{
		msg.ID,
		msg.ThreadID,
		string(msg.Role),
		partsJSON,
		annotationsJSON,
		attachmentsJSON,
		msg.Model,
		createdAt,
	}, nil
}

func scanMessage(row pgx.Row) (*models.ChatMessage, error) {
	var (
		m                               models.ChatMessage
		role                            string
		parts, annotations, attachments []byte
	)
	if err := row.Scan(
		&m.ID,
		&m.ThreadID,
		&role,
		&parts,
		&annotations,
		&attachments,
		&m.Model,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.Role = models.Role(role)

	if err := decodeJSONB(parts, &m.Parts); err != nil {
		return nil, fmt.Errorf("decode parts: %w", err)
	}
	if m.Parts == nil {
		m.Parts = []json.RawMessage{}
	}
	if err := decodeJSONB(annotations, &m.Annotations); err != nil {
		return nil, fmt.Errorf("decode annotations: %w", err)
	}
	if err := decodeJSONB(attachments, &m.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return &m, nil
}
