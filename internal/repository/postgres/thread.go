package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/threadline/internal/models"
	"github.com/lalith-99/threadline/internal/repository"
)

const threadColumns = `id, title, user_id, project_id, created_at`

// ThreadStore reads users through the UserRepository interface so the
// instruction lookups go through whatever cache sits in front of it.
type ThreadStore struct {
	pool  *pgxpool.Pool
	users repository.UserRepository
}

func NewThreadStore(pool *pgxpool.Pool, users repository.UserRepository) *ThreadStore {
	return &ThreadStore{pool: pool, users: users}
}

func (s *ThreadStore) Create(ctx context.Context, thread models.NewThread) (*models.ChatThread, error) {
	query := `
		INSERT INTO chat_threads (id, title, user_id, project_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING ` + threadColumns

	t, err := scanThread(s.pool.QueryRow(ctx, query, thread.ID, thread.Title, thread.UserID, thread.ProjectID))
	if err != nil {
		return nil, wrapErr("insert thread", err)
	}
	return t, nil
}

func (s *ThreadStore) Upsert(ctx context.Context, thread models.NewThread) (*models.ChatThread, error) {
	// Only the title follows the second writer, and only when it owns the
	// row; project stays whatever the first insert set.
	query := `
		INSERT INTO chat_threads (id, title, user_id, project_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title
		WHERE chat_threads.user_id = EXCLUDED.user_id
		RETURNING ` + threadColumns

	t, err := scanThread(s.pool.QueryRow(ctx, query, thread.ID, thread.Title, thread.UserID, thread.ProjectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("upsert thread", err)
	}
	return t, nil
}

func (s *ThreadStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ChatThread, error) {
	query := `SELECT ` + threadColumns + ` FROM chat_threads WHERE id = $1`

	t, err := scanThread(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return t, nil
}

func (s *ThreadStore) GetDetails(ctx context.Context, id uuid.UUID) (*models.ThreadDetails, error) {
	if id == uuid.Nil {
		return nil, nil
	}

	// LEFT JOINs: a thread with no project, or whose owner row is gone,
	// still comes back with nil instructions/preferences.
	query := `
		SELECT t.id, t.title, t.user_id, t.project_id, t.created_at,
		       p.instructions, u.preferences
		FROM chat_threads t
		LEFT JOIN projects p ON p.id = t.project_id
		LEFT JOIN users u ON u.id = t.user_id
		WHERE t.id = $1`

	var (
		d                 models.ThreadDetails
		instructions, pre []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.Title,
		&d.UserID,
		&d.ProjectID,
		&d.CreatedAt,
		&instructions,
		&pre,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get thread details: %w", err)
	}
	if instructions != nil {
		d.Instructions = &models.ProjectInstructions{}
		if err := decodeJSONB(instructions, d.Instructions); err != nil {
			return nil, fmt.Errorf("decode instructions: %w", err)
		}
	}
	if pre != nil {
		d.UserPreferences = &models.UserPreferences{}
		if err := decodeJSONB(pre, d.UserPreferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
	}

	d.Messages, err = listMessages(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *ThreadStore) GetInstructions(ctx context.Context, userID uuid.UUID, threadID *uuid.UUID) (*models.ThreadInstructions, error) {
	out, err := s.instructionsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if threadID == nil {
		return out, nil
	}

	query := `
		SELECT t.id, t.project_id, p.instructions
		FROM chat_threads t
		LEFT JOIN projects p ON p.id = t.project_id
		WHERE t.id = $1`

	var (
		tid          uuid.UUID
		projectID    *uuid.UUID
		instructions []byte
	)
	err = s.pool.QueryRow(ctx, query, *threadID).Scan(&tid, &projectID, &instructions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// New conversation: the thread doesn't exist yet.
			return out, nil
		}
		return nil, fmt.Errorf("get thread instructions: %w", err)
	}

	out.ThreadID = &tid
	out.ProjectID = projectID
	if instructions != nil {
		out.Instructions = &models.ProjectInstructions{}
		if err := decodeJSONB(instructions, out.Instructions); err != nil {
			return nil, fmt.Errorf("decode instructions: %w", err)
		}
	}
	return out, nil
}

func (s *ThreadStore) GetInstructionsByProject(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID) (*models.ThreadInstructions, error) {
	out, err := s.instructionsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if projectID == nil {
		return out, nil
	}

	var instructions []byte
	err = s.pool.QueryRow(ctx, `SELECT instructions FROM projects WHERE id = $1`, *projectID).Scan(&instructions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, nil
		}
		return nil, fmt.Errorf("get project instructions: %w", err)
	}

	pid := *projectID
	out.ProjectID = &pid
	out.Instructions = &models.ProjectInstructions{}
	if err := decodeJSONB(instructions, out.Instructions); err != nil {
		return nil, fmt.Errorf("decode instructions: %w", err)
	}
	return out, nil
}

// instructionsFor seeds the result with the user's preferences. The user
// must exist: prompt assembly downstream can't run without them.
func (s *ThreadStore) instructionsFor(ctx context.Context, userID uuid.UUID) (*models.ThreadInstructions, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrUserNotFound, userID)
	}
	return &models.ThreadInstructions{UserPreferences: user.Preferences}, nil
}

type threadSummaryRow struct {
	ID            uuid.UUID  `db:"id"`
	Title         string     `db:"title"`
	UserID        uuid.UUID  `db:"user_id"`
	ProjectID     *uuid.UUID `db:"project_id"`
	CreatedAt     time.Time  `db:"created_at"`
	LastMessageAt *time.Time `db:"last_message_at"`
}

func (s *ThreadStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.ThreadSummary, error) {
	// Postgres sorts NULL first under DESC; NULLS LAST keeps threads
	// without messages at the bottom.
	query := `
		SELECT t.id, t.title, t.user_id, t.project_id, t.created_at,
		       MAX(m.created_at) AS last_message_at
		FROM chat_threads t
		LEFT JOIN chat_messages m ON m.thread_id = t.id
		WHERE t.user_id = $1
		GROUP BY t.id
		ORDER BY last_message_at DESC NULLS LAST, t.created_at DESC`

	var rows []threadSummaryRow
	if err := pgxscan.Select(ctx, s.pool, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	threads := make([]models.ThreadSummary, 0, len(rows))
	for _, r := range rows {
		summary := models.ThreadSummary{
			ChatThread: models.ChatThread{
				ID:        r.ID,
				Title:     r.Title,
				UserID:    r.UserID,
				ProjectID: r.ProjectID,
				CreatedAt: r.CreatedAt,
			},
		}
		if r.LastMessageAt != nil {
			summary.LastMessageAt = r.LastMessageAt.UnixMilli()
		}
		threads = append(threads, summary)
	}
	return threads, nil
}

func (s *ThreadStore) Update(ctx context.Context, id uuid.UUID, update models.ThreadUpdate) (*models.ChatThread, error) {
	query := `
		UPDATE chat_threads
		SET title      = COALESCE($2, title),
		    project_id = CASE WHEN $4::boolean THEN NULL ELSE COALESCE($3, project_id) END
		WHERE id = $1
		RETURNING ` + threadColumns

	t, err := scanThread(s.pool.QueryRow(ctx, query, id, update.Title, update.ProjectID, update.DetachProject))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("update thread", err)
	}
	return t, nil
}

func (s *ThreadStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.deleteWhere(ctx, `id = $1`, id)
	return err
}

func (s *ThreadStore) DeleteNonProject(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.deleteWhere(ctx, `user_id = $1 AND project_id IS NULL`, userID)
}

func (s *ThreadStore) DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.deleteWhere(ctx, `user_id = $1`, userID)
}

func (s *ThreadStore) deleteWhere(ctx context.Context, filter string, args ...any) (int64, error) {
	var n int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		n, err = deleteThreadsTx(ctx, tx, filter, args...)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// deleteThreadsTx removes the threads matching filter, messages first, as
// two set-oriented statements inside the caller's transaction. filter is
// always a constant from this package; values go through args.
func deleteThreadsTx(ctx context.Context, tx pgx.Tx, filter string, args ...any) (int64, error) {
	msgQuery := `
		DELETE FROM chat_messages
		WHERE thread_id IN (SELECT id FROM chat_threads WHERE ` + filter + `)`
	if _, err := tx.Exec(ctx, msgQuery, args...); err != nil {
		return 0, fmt.Errorf("delete thread messages: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM chat_threads WHERE `+filter, args...)
	if err != nil {
		return 0, fmt.Errorf("delete threads: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanThread(row pgx.Row) (*models.ChatThread, error) {
	var t models.ChatThread
	if err := row.Scan(
		&t.ID,
		&t.Title,
		&t.UserID,
		&t.ProjectID,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
