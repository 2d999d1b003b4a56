package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/taskboard/internal/adapter/storetest"
	"github.com/pscheid92/taskboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "alice@example.com"

func newTestStore(t *testing.T) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewStore(clock), clock
}

func TestUserRepo_CreateDuplicate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	users := s.Users()

	require.NoError(t, users.Create(ctx, &domain.User{Email: owner}))
	err := users.Create(ctx, &domain.User{Email: owner, Attributes: map[string]any{"name": "other"}})
	assert.ErrorIs(t, err, domain.ErrUserExists)

	got, err := users.GetByEmail(ctx, owner)
	require.NoError(t, err)
	assert.Nil(t, got.Attributes)
}

func TestUserRepo_GetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Users().GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestContainerRepo_MissingOwner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	repo := s.Containers()

	_, err := repo.AddProject(ctx, owner, domain.NewProject{})
	assert.ErrorIs(t, err, domain.ErrOwnerNotFound)

	_, err = repo.Get(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrOwnerNotFound)
}

func TestContainerRepo_CreateTwice(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Containers().Create(ctx, owner)
	require.NoError(t, err)
	_, err = s.Containers().Create(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrContainerExists)
}

func TestContainerRepo_ReturnsCopies(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	repo := s.Containers()
	_, err := repo.Create(ctx, owner)
	require.NoError(t, err)
	_, err = repo.AddProject(ctx, owner, domain.NewProject{Name: "P"})
	require.NoError(t, err)

	got, err := repo.Get(ctx, owner)
	require.NoError(t, err)
	got.Projects[0].Name = "mutated"

	again, err := repo.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "P", again.Projects[0].Name)
}

func TestContainerRepo_UpdatedAtFollowsClock(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	repo := s.Containers()
	_, err := repo.Create(ctx, owner)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = repo.AddProject(ctx, owner, domain.NewProject{})
	require.NoError(t, err)

	got, err := repo.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), got.UpdatedAt)
	assert.Equal(t, clock.Now().Add(-time.Hour), got.CreatedAt)
}

func TestContainerRepo_ConcurrentAddTask(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	repo := s.Containers()
	_, err := repo.Create(ctx, owner)
	require.NoError(t, err)
	p, err := repo.AddProject(ctx, owner, domain.NewProject{})
	require.NoError(t, err)

	const n = 20
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := repo.AddTask(ctx, owner, p.ID, domain.TaskFields{"title": "x"})
			assert.NoError(t, err)
			if task != nil {
				ids <- task.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	got, err := repo.Get(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, got.Projects[0].Tasks, n)
}

func TestContainerRepo_DeleteTaskWrongIDLeavesTasks(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	repo := s.Containers()
	_, err := repo.Create(ctx, owner)
	require.NoError(t, err)
	p, err := repo.AddProject(ctx, owner, domain.NewProject{})
	require.NoError(t, err)
	_, err = repo.AddTask(ctx, owner, p.ID, domain.TaskFields{"title": "keep"})
	require.NoError(t, err)

	before, err := repo.Get(ctx, owner)
	require.NoError(t, err)

	err = repo.DeleteTask(ctx, owner, p.ID, 99)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	after, err := repo.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, before.Projects[0].Tasks, after.Projects[0].Tasks)
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Repos {
		s, _ := newTestStore(t)
		return storetest.Repos{Users: s.Users(), Containers: s.Containers()}
	})
}
