package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/taskboard/internal/domain"
)

// document is the JSONB shape of a container row. Tasks reuse the flattened task
// encoding of the domain package.
type document struct {
	ProjectSeq int64             `json:"project_seq"`
	Projects   []projectDocument `json:"projects"`
}

type projectDocument struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	TaskSeq   int64         `json:"task_seq"`
	Tasks     []domain.Task `json:"tasks"`
	CreatedAt time.Time     `json:"created_at"`
}

type ContainerRepo struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

func NewContainerRepo(pool *pgxpool.Pool, clock clockwork.Clock) *ContainerRepo {
	return &ContainerRepo{pool: pool, clock: clock}
}

func (r *ContainerRepo) now() time.Time {
	return r.clock.Now().UTC().Truncate(time.Microsecond)
}

func (r *ContainerRepo) Create(ctx context.Context, owner string) (*domain.Container, error) {
	c := domain.NewContainer(owner, r.now())
	raw, err := json.Marshal(toDocument(c))
	if err != nil {
		return nil, fmt.Errorf("failed to encode container: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO containers (owner, document, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
		owner, raw, c.CreatedAt)
	if isUniqueViolation(err) {
		return nil, domain.ErrContainerExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert container: %w", err)
	}
	return c, nil
}

func (r *ContainerRepo) Get(ctx context.Context, owner string) (*domain.Container, error) {
	return load(ctx, r.pool, owner, false)
}

func (r *ContainerRepo) AddProject(ctx context.Context, owner string, np domain.NewProject) (*domain.Project, error) {
	var out domain.Project
	err := r.mutate(ctx, owner, func(c *domain.Container, now time.Time) error {
		out = c.AddProject(np, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ContainerRepo) UpdateProject(ctx context.Context, owner string, projectID int64, patch domain.ProjectPatch) (*domain.Project, error) {
	var out domain.Project
	err := r.mutate(ctx, owner, func(c *domain.Container, now time.Time) error {
		var err error
		out, err = c.UpdateProject(projectID, patch, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ContainerRepo) DeleteProject(ctx context.Context, owner string, projectID int64) error {
	return r.mutate(ctx, owner, func(c *domain.Container, now time.Time) error {
		return c.RemoveProject(projectID, now)
	})
}

func (r *ContainerRepo) AddTask(ctx context.Context, owner string, projectID int64, fields domain.TaskFields) (*domain.Task, error) {
	var out domain.Task
	err := r.mutate(ctx, owner, func(c *domain.Container, now time.Time) error {
		var err error
		out, err = c.AddTask(projectID, fields, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ContainerRepo) UpdateTask(ctx context.Context, owner string, projectID, taskID int64, fields domain.TaskFields) (*domain.Task, error) {
	var out domain.Task
	err := r.mutate(ctx, owner, func(c *domain.Container, now time.Time) error {
		var err error
		out, err = c.UpdateTask(projectID, taskID, fields, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ContainerRepo) DeleteTask(ctx context.Context, owner string, projectID, taskID int64) error {
	return r.mutate(ctx, owner, func(c *domain.Container, now time.Time) error {
		return c.RemoveTask(projectID, taskID, now)
	})
}

// mutate locks the owner's row for the duration of fn. When fn fails the
// transaction rolls back and the row is left as it was.
func (r *ContainerRepo) mutate(ctx context.Context, owner string, fn func(c *domain.Container, now time.Time) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := load(ctx, tx, owner, true)
	if err != nil {
		return err
	}

	if err := fn(c, r.now()); err != nil {
		return err
	}

	raw, err := json.Marshal(toDocument(c))
	if err != nil {
		return fmt.Errorf("failed to encode container: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE containers SET document = $2, updated_at = $3 WHERE owner = $1`,
		owner, raw, c.UpdatedAt); err != nil {
		return fmt.Errorf("failed to update container: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func load(ctx context.Context, q querier, owner string, forUpdate bool) (*domain.Container, error) {
	query := `SELECT document, created_at, updated_at FROM containers WHERE owner = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		raw       []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := q.QueryRow(ctx, query, owner).Scan(&raw, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOwnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load container: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode container: %w", err)
	}
	return fromDocument(owner, doc, createdAt.UTC(), updatedAt.UTC()), nil
}

func toDocument(c *domain.Container) document {
	doc := document{
		ProjectSeq: c.ProjectSeq,
		Projects:   make([]projectDocument, len(c.Projects)),
	}
	for i, p := range c.Projects {
		doc.Projects[i] = projectDocument{
			ID:        p.ID,
			Name:      p.Name,
			Status:    p.Status,
			TaskSeq:   p.TaskSeq,
			Tasks:     p.Tasks,
			CreatedAt: p.CreatedAt,
		}
	}
	return doc
}

func fromDocument(owner string, doc document, createdAt, updatedAt time.Time) *domain.Container {
	c := &domain.Container{
		Owner:      owner,
		ProjectSeq: doc.ProjectSeq,
		Projects:   make([]domain.Project, len(doc.Projects)),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
	for i, p := range doc.Projects {
		tasks := p.Tasks
		if tasks == nil {
			tasks = []domain.Task{}
		}
		c.Projects[i] = domain.Project{
			ID:        p.ID,
			Name:      p.Name,
			Status:    p.Status,
			TaskSeq:   p.TaskSeq,
			Tasks:     tasks,
			CreatedAt: p.CreatedAt,
		}
	}
	return c
}
