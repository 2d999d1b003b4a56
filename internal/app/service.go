package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/taskboard/internal/domain"
)

// Service is the application layer. It is the only component that references
// both the user registry and the container store.
type Service struct {
	users      domain.UserRepository
	containers domain.ContainerRepository
	clock      clockwork.Clock
}

func NewService(users domain.UserRepository, containers domain.ContainerRepository, clock clockwork.Clock) *Service {
	return &Service{
		users:      users,
		containers: containers,
		clock:      clock,
	}
}

// RegisterUser creates the user and seeds an empty project container for it.
// The email is normalized before it becomes the owner key. A duplicate
// registration still seeds the container when an earlier attempt left the user
// without one.
func (s *Service) RegisterUser(ctx context.Context, email string, attributes map[string]any) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, domain.ErrEmailRequired
	}

	attrs := maps.Clone(attributes)
	delete(attrs, "email")
	if len(attrs) == 0 {
		attrs = nil
	}

	user := &domain.User{
		Email:      email,
		Attributes: attrs,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			s.repairContainer(ctx, email)
		}
		return nil, err
	}

	if err := s.seedContainer(ctx, email); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) seedContainer(ctx context.Context, owner string) error {
	if _, err := s.containers.Create(ctx, owner); err != nil {
		if errors.Is(err, domain.ErrContainerExists) {
			slog.Warn("Project container already present for new user", "owner", owner)
			return nil
		}
		slog.Error("Failed to seed project container", "owner", owner, "error", err)
		return fmt.Errorf("failed to create project container: %w", err)
	}
	return nil
}

// repairContainer seeds the container of an already registered user. The
// caller still reports the duplicate.
func (s *Service) repairContainer(ctx context.Context, owner string) {
	_, err := s.containers.Create(ctx, owner)
	switch {
	case err == nil:
		slog.Warn("Seeded missing project container for existing user", "owner", owner)
	case errors.Is(err, domain.ErrContainerExists):
	default:
		slog.Error("Failed to repair project container", "owner", owner, "error", err)
	}
}

func (s *Service) GetUser(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
}

// GetContainer reads an owner's container. Every call is its own store round
// trip, so a read started after a write observes it.
func (s *Service) GetContainer(ctx context.Context, owner string) (*domain.Container, error) {
	c, err := s.containers.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (s *Service) GetProject(ctx context.Context, owner string, projectID int64) (*domain.Project, error) {
	c, err := s.GetContainer(ctx, owner)
	if err != nil {
		return nil, err
	}
	return c.Project(projectID)
}

func (s *Service) CreateProject(ctx context.Context, owner string, project domain.NewProject) (*domain.Project, error) {
	p, err := s.containers.AddProject(ctx, owner, project)
	if err != nil {
		return nil, err
	}
	slog.Debug("Project created", "owner", owner, "project_id", p.ID)
	return p, nil
}

// UpdateProject merges patch into the project. An empty patch only verifies that the
// project exists.
func (s *Service) UpdateProject(ctx context.Context, owner string, projectID int64, patch domain.ProjectPatch) (*domain.Project, error) {
	if patch.IsEmpty() {
		return s.GetProject(ctx, owner, projectID)
	}
	return s.containers.UpdateProject(ctx, owner, projectID, patch)
}

func (s *Service) DeleteProject(ctx context.Context, owner string, projectID int64) error {
	if err := s.containers.DeleteProject(ctx, owner, projectID); err != nil {
		return err
	}
	slog.Debug("Project deleted", "owner", owner, "project_id", projectID)
	return nil
}

// AddTask normalizes the client fields and appends the task with the next id of
// its project.
func (s *Service) AddTask(ctx context.Context, owner string, projectID int64, raw map[string]any) (*domain.Task, error) {
	fields, err := domain.NormalizeTaskFields(raw)
	if err != nil {
		return nil, err
	}
	return s.containers.AddTask(ctx, owner, projectID, fields)
}

func (s *Service) UpdateTask(ctx context.Context, owner string, projectID, taskID int64, raw map[string]any) (*domain.Task, error) {
	fields, err := domain.NormalizeTaskFields(raw)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		c, err := s.GetContainer(ctx, owner)
		if err != nil {
			return nil, err
		}
		return c.Task(projectID, taskID)
	}
	return s.containers.UpdateTask(ctx, owner, projectID, taskID, fields)
}

func (s *Service) DeleteTask(ctx context.Context, owner string, projectID, taskID int64) error {
	return s.containers.DeleteTask(ctx, owner, projectID, taskID)
}
