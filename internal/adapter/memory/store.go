// Package memory provides in-process repositories for development and tests.
// A single mutex serializes every operation, so each call is atomic per container.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/taskboard/internal/domain"
)

type Store struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	users      map[string]*domain.User
	containers map[string]*domain.Container
}

func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:      clock,
		users:      make(map[string]*domain.User),
		containers: make(map[string]*domain.Container),
	}
}

func (s *Store) Users() *UserRepo {
	return &UserRepo{store: s}
}

func (s *Store) Containers() *ContainerRepo {
	return &ContainerRepo{store: s}
}

// Ping always succeeds; it lets the memory store sit behind the readiness check.
func (s *Store) Ping(context.Context) error {
	return nil
}

type UserRepo struct {
	store *Store
}

func (r *UserRepo) Create(_ context.Context, user *domain.User) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Email]; ok {
		return domain.ErrUserExists
	}
	u := *user
	u.Attributes = maps.Clone(user.Attributes)
	s.users[user.Email] = &u
	return nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := *u
	out.Attributes = maps.Clone(u.Attributes)
	return &out, nil
}

type ContainerRepo struct {
	store *Store
}

func (r *ContainerRepo) Create(_ context.Context, owner string) (*domain.Container, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.containers[owner]; ok {
		return nil, domain.ErrContainerExists
	}
	c := domain.NewContainer(owner, s.clock.Now())
	s.containers[owner] = c
	return c.Clone(), nil
}

func (r *ContainerRepo) Get(_ context.Context, owner string) (*domain.Container, error) {
	var out *domain.Container
	err := r.store.with(owner, func(c *domain.Container) error {
		out = c.Clone()
		return nil
	})
	return out, err
}

func (r *ContainerRepo) AddProject(_ context.Context, owner string, np domain.NewProject) (*domain.Project, error) {
	var out domain.Project
	err := r.store.with(owner, func(c *domain.Container) error {
		out = c.AddProject(np, r.store.clock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ContainerRepo) UpdateProject(_ context.Context, owner string, projectID int64, patch domain.ProjectPatch) (*domain.Project, error) {
	var out domain.Project
	err := r.store.with(owner, func(c *domain.Container) error {
		var err error
		out, err = c.UpdateProject(projectID, patch, r.store.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ContainerRepo) DeleteProject(_ context.Context, owner string, projectID int64) error {
	return r.store.with(owner, func(c *domain.Container) error {
		return c.RemoveProject(projectID, r.store.clock.Now())
	})
}

func (r *ContainerRepo) AddTask(_ context.Context, owner string, projectID int64, fields domain.TaskFields) (*domain.Task, error) {
	var out domain.Task
	err := r.store.with(owner, func(c *domain.Container) error {
		var err error
		out, err = c.AddTask(projectID, fields, r.store.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ContainerRepo) UpdateTask(_ context.Context, owner string, projectID, taskID int64, fields domain.TaskFields) (*domain.Task, error) {
	var out domain.Task
	err := r.store.with(owner, func(c *domain.Container) error {
		var err error
		out, err = c.UpdateTask(projectID, taskID, fields, r.store.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ContainerRepo) DeleteTask(_ context.Context, owner string, projectID, taskID int64) error {
	return r.store.with(owner, func(c *domain.Container) error {
		return c.RemoveTask(projectID, taskID, r.store.clock.Now())
	})
}

func (s *Store) with(owner string, fn func(c *domain.Container) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.containers[owner]
	if !ok {
		return domain.ErrOwnerNotFound
	}
	return fn(c)
}
