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
)

const projectColumns = `id, name, user_id, instructions, created_at, updated_at`

type ProjectStore struct {
	pool *pgxpool.Pool
}

func NewProjectStore(pool *pgxpool.Pool) *ProjectStore {
	return &ProjectStore{pool: pool}
}

func (s *ProjectStore) Create(ctx context.Context, project models.NewProject) (*models.Project, error) {
	query := `
		INSERT INTO projects (name, user_id, instructions, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING ` + projectColumns

	instructions, err := jsonbParam(project.Instructions)
	if err != nil {
		return nil, fmt.Errorf("encode instructions: %w", err)
	}

	p, err := scanProject(s.pool.QueryRow(ctx, query, project.Name, project.UserID, instructions))
	if err != nil {
		return nil, wrapErr("insert project", err)
	}
	return p, nil
}

func (s *ProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ProjectWithThreads, error) {
	// One row per thread; a project with no threads still yields a single
	// row whose thread columns are all NULL.
	query := `
		SELECT p.id, p.name, p.user_id, p.instructions, p.created_at, p.updated_at,
		       t.id, t.title, t.user_id, t.project_id, t.created_at
		FROM projects p
		LEFT JOIN chat_threads t ON t.project_id = p.id
		WHERE p.id = $1
		ORDER BY t.created_at DESC NULLS LAST`

	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	defer rows.Close()

	var out *models.ProjectWithThreads
	for rows.Next() {
		var (
			p            models.Project
			instructions []byte

			threadID        *uuid.UUID
			threadTitle     *string
			threadUserID    *uuid.UUID
			threadProjectID *uuid.UUID
			threadCreatedAt *time.Time
		)
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.UserID,
			&instructions,
			&p.CreatedAt,
			&p.UpdatedAt,
			&threadID,
			&threadTitle,
			&threadUserID,
			&threadProjectID,
			&threadCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}

		if out == nil {
			if err := decodeJSONB(instructions, &p.Instructions); err != nil {
				return nil, fmt.Errorf("decode instructions: %w", err)
			}
			out = &models.ProjectWithThreads{Project: p, Threads: make([]models.ChatThread, 0)}
		}
		if threadID == nil {
			continue
		}
		out.Threads = append(out.Threads, models.ChatThread{
			ID:        *threadID,
			Title:     *threadTitle,
			UserID:    *threadUserID,
			ProjectID: threadProjectID,
			CreatedAt: *threadCreatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project threads: %w", err)
	}

	return out, nil
}

type projectSummaryRow struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	UserID       uuid.UUID `db:"user_id"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastThreadAt time.Time `db:"last_thread_at"`
}

func (s *ProjectStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.ProjectSummary, error) {
	// Projects without threads get the epoch, so they sort after every
	// project that has one.
	query := `
		SELECT p.id, p.name, p.user_id, p.created_at, p.updated_at,
		       COALESCE(MAX(t.created_at), 'epoch'::timestamptz) AS last_thread_at
		FROM projects p
		LEFT JOIN chat_threads t ON t.project_id = p.id
		WHERE p.user_id = $1
		GROUP BY p.id
		ORDER BY last_thread_at DESC, p.created_at DESC`

	var rows []projectSummaryRow
	if err := pgxscan.Select(ctx, s.pool, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	projects := make([]models.ProjectSummary, 0, len(rows))
	for _, r := range rows {
		projects = append(projects, models.ProjectSummary(r))
	}
	return projects, nil
}

func (s *ProjectStore) Update(ctx context.Context, id uuid.UUID, update models.ProjectUpdate) (*models.Project, error) {
	query := `
		UPDATE projects
		SET name         = COALESCE($2, name),
		    instructions = COALESCE($3, instructions),
		    updated_at   = now()
		WHERE id = $1
		RETURNING ` + projectColumns

	var instructions []byte
	if update.Instructions != nil {
		var err error
		if instructions, err = jsonbParam(update.Instructions); err != nil {
			return nil, fmt.Errorf("encode instructions: %w", err)
		}
	}

	p, err := scanProject(s.pool.QueryRow(ctx, query, id, update.Name, instructions))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("update project", err)
	}
	return p, nil
}

// Delete cascades project -> threads -> messages in one transaction. The
// threads go through the same path as a single thread delete.
func (s *ProjectStore) Delete(ctx context.Context, id uuid.UUID) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := deleteThreadsTx(ctx, tx, `project_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return nil
	})
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var (
		p            models.Project
		instructions []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.UserID,
		&instructions,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeJSONB(instructions, &p.Instructions); err != nil {
		return nil, fmt.Errorf("decode instructions: %w", err)
	}
	return &p, nil
}
