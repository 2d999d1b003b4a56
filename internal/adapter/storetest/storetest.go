// Package storetest holds the behavior every repository backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pscheid92/taskboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Repos is one fresh backend. Owners must not collide across calls, so each
// subtest picks a unique email.
type Repos struct {
	Users      domain.UserRepository
	Containers domain.ContainerRepository
}

func Run(t *testing.T, newRepos func(t *testing.T) Repos) {
	t.Helper()

	var seq int
	var mu sync.Mutex
	nextOwner := func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("owner-%d@example.com", seq)
	}

	setup := func(t *testing.T) (Repos, string) {
		t.Helper()
		r := newRepos(t)
		owner := nextOwner()
		_, err := r.Containers.Create(context.Background(), owner)
		require.NoError(t, err)
		return r, owner
	}

	t.Run("user duplicate email", func(t *testing.T) {
		r := newRepos(t)
		ctx := context.Background()
		email := nextOwner()

		require.NoError(t, r.Users.Create(ctx, &domain.User{Email: email, Attributes: map[string]any{"name": "first"}}))
		err := r.Users.Create(ctx, &domain.User{Email: email, Attributes: map[string]any{"name": "second"}})
		assert.ErrorIs(t, err, domain.ErrUserExists)

		got, err := r.Users.GetByEmail(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, "first", got.Attributes["name"])
	})

	t.Run("user not found", func(t *testing.T) {
		r := newRepos(t)
		_, err := r.Users.GetByEmail(context.Background(), nextOwner())
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("container created once", func(t *testing.T) {
		r, owner := setup(t)
		_, err := r.Containers.Create(context.Background(), owner)
		assert.ErrorIs(t, err, domain.ErrContainerExists)
	})

	t.Run("missing owner", func(t *testing.T) {
		r := newRepos(t)
		ctx := context.Background()
		owner := nextOwner()

		_, err := r.Containers.Get(ctx, owner)
		assert.ErrorIs(t, err, domain.ErrOwnerNotFound)
		_, err = r.Containers.AddProject(ctx, owner, domain.NewProject{})
		assert.ErrorIs(t, err, domain.ErrOwnerNotFound)
		err = r.Containers.DeleteProject(ctx, owner, 1)
		assert.ErrorIs(t, err, domain.ErrOwnerNotFound)
		_, err = r.Containers.AddTask(ctx, owner, 1, domain.TaskFields{"title": "x"})
		assert.ErrorIs(t, err, domain.ErrOwnerNotFound)

		_, err = r.Containers.Get(ctx, owner)
		assert.ErrorIs(t, err, domain.ErrOwnerNotFound)
	})

	t.Run("project defaults and ids", func(t *testing.T) {
		r, owner := setup(t)
		ctx := context.Background()

		p1, err := r.Containers.AddProject(ctx, owner, domain.NewProject{})
		require.NoError(t, err)
		p2, err := r.Containers.AddProject(ctx, owner, domain.NewProject{Name: "Website", Status: "Done"})
		require.NoError(t, err)

		assert.Equal(t, int64(1), p1.ID)
		assert.Equal(t, domain.DefaultProjectName, p1.Name)
		assert.Equal(t, domain.DefaultProjectStatus, p1.Status)
		assert.Empty(t, p1.Tasks)
		assert.Equal(t, int64(2), p2.ID)

		c, err := r.Containers.Get(ctx, owner)
		require.NoError(t, err)
		require.Len(t, c.Projects, 2)
		assert.Equal(t, "Website", c.Projects[1].Name)
	})

	t.Run("update project status only", func(t *testing.T) {
		r, owner := setup(t)
		ctx := context.Background()
		p, err := r.Containers.AddProject(ctx, owner, domain.NewProject{Name: "Website"})
		require.NoError(t, err)

		status := "Done"
		got, err := r.Containers.UpdateProject(ctx, owner, p.ID, domain.ProjectPatch{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, "Website", got.Name)
		assert.Equal(t, "Done", got.Status)

		_, err = r.Containers.UpdateProject(ctx, owner, 99, domain.ProjectPatch{Status: &status})
		assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	})

	t.Run("delete project keeps order", func(t *testing.T) {
		r, owner := setup(t)
		ctx := context.Background()
		for range 3 {
			_, err := r.Containers.AddProject(ctx, owner, domain.NewProject{})
			require.NoError(t, err)
		}

		require.NoError(t, r.Containers.DeleteProject(ctx, owner, 2))
		assert.ErrorIs(t, r.Containers.DeleteProject(ctx, owner, 2), domain.ErrProjectNotFound)

		c, err := r.Containers.Get(ctx, owner)
		require.NoError(t, err)
		require.Len(t, c.Projects, 2)
		assert.Equal(t, int64(1), c.Projects[0].ID)
		assert.Equal(t, int64(3), c.Projects[1].ID)

		p, err := r.Containers.AddProject(ctx, owner, domain.NewProject{})
		require.NoError(t, err)
		assert.Equal(t, int64(4), p.ID)
	})

	t.Run("task lifecycle", func(t *testing.T) {
		r, owner := setup(t)
		ctx := context.Background()
		p, err := r.Containers.AddProject(ctx, owner, domain.NewProject{Name: "P"})
		require.NoError(t, err)

		t1, err := r.Containers.AddTask(ctx, owner, p.ID, domain.TaskFields{"title": "T1"})
		require.NoError(t, err)
		t2, err := r.Containers.AddTask(ctx, owner, p.ID, domain.TaskFields{"title": "T2"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), t1.ID)
		assert.Equal(t, int64(2), t2.ID)

		require.NoError(t, r.Containers.DeleteTask(ctx, owner, p.ID, t1.ID))

		c, err := r.Containers.Get(ctx, owner)
		require.NoError(t, err)
		got, err := c.Project(p.ID)
		require.NoError(t, err)
		require.Len(t, got.Tasks, 1)
		assert.Equal(t, t2.ID, got.Tasks[0].ID)
		assert.Equal(t, "T2", got.Tasks[0].Fields["title"])
	})

	t.Run("update task merges by composite key", func(t *testing.T) {
		r, owner := setup(t)
		ctx := context.Background()
		p1, err := r.Containers.AddProject(ctx, owner, domain.NewProject{})
		require.NoError(t, err)
		p2, err := r.Containers.AddProject(ctx, owner, domain.NewProject{})
		require.NoError(t, err)
		_, err = r.Containers.AddTask(ctx, owner, p1.ID, domain.TaskFields{"title": "one", "status": "todo"})
		require.NoError(t, err)
		_, err = r.Containers.AddTask(ctx, owner, p2.ID, domain.TaskFields{"title": "other"})
		require.NoError(t, err)

		got, err := r.Containers.UpdateTask(ctx, owner, p1.ID, 1, domain.TaskFields{"status": "done"})
		require.NoError(t, err)
		assert.Equal(t, "one", got.Fields["title"])
		assert.Equal(t, "done", got.Fields["status"])

		c, err := r.Containers.Get(ctx, owner)
		require.NoError(t, err)
		other, err := c.Task(p2.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, "other", other.Fields["title"])
		assert.NotContains(t, other.Fields, "status")

		_, err = r.Containers.UpdateTask(ctx, owner, p1.ID, 9, domain.TaskFields{"status": "x"})
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
		_, err = r.Containers.UpdateTask(ctx, owner, 9, 1, domain.TaskFields{"status": "x"})
		assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	})

	t.Run("delete task wrong id leaves tasks unchanged", func(t *testing.T) {
		r, owner := setup(t)
		ctx := context.Background()
		p, err := r.Containers.AddProject(ctx, owner, domain.NewProject{})
		require.NoError(t, err)
		_, err = r.Containers.AddTask(ctx, owner, p.ID, domain.TaskFields{"title": "keep"})
		require.NoError(t, err)

		before, err := r.Containers.Get(ctx, owner)
		require.NoError(t, err)

		assert.ErrorIs(t, r.Containers.DeleteTask(ctx, owner, p.ID, 42), domain.ErrTaskNotFound)
		assert.ErrorIs(t, r.Containers.DeleteTask(ctx, owner, 42, 1), domain.ErrProjectNotFound)

		after, err := r.Containers.Get(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, before.Projects, after.Projects)
	})

	t.Run("add task to missing project", func(t *testing.T) {
		r, owner := setup(t)
		_, err := r.Containers.AddTask(context.Background(), owner, 5, domain.TaskFields{"title": "x"})
		assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	})

	t.Run("concurrent add task yields distinct ids", func(t *testing.T) {
		r, owner := setup(t)
		ctx := context.Background()
		p, err := r.Containers.AddProject(ctx, owner, domain.NewProject{})
		require.NoError(t, err)

		const n = 8
		ids := make(chan int64, n)
		var wg sync.WaitGroup
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				task, err := r.Containers.AddTask(ctx, owner, p.ID, domain.TaskFields{"title": "t"})
				if assert.NoError(t, err) {
					ids <- task.ID
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[int64]bool)
		for id := range ids {
			assert.False(t, seen[id], "duplicate task id %d", id)
			seen[id] = true
		}
		assert.Len(t, seen, n)

		c, err := r.Containers.Get(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, c.Projects[0].Tasks, n)
	})
}
