// Package userstest holds a behaviour suite every users.UserRepo implementation
// must pass.
package userstest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-broker/users"
	"github.com/stretchr/testify/require"
)

// RunRepoSuite exercises the storage contract the provisioner depends on.
func RunRepoSuite(t *testing.T, newRepo func(t *testing.T) users.UserRepo) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("insert and find", func(t *testing.T) {
		repo := newRepo(t)
		u := users.NewUser("id-1", "sub-1", "one@example.com", now)
		require.NoError(t, repo.Insert(ctx, u))

		got, err := repo.FindByExternalID(ctx, "sub-1")
		require.NoError(t, err)
		require.Equal(t, "id-1", got.ID)
		require.Equal(t, "one@example.com", got.Email)
		require.Equal(t, users.RoleUser, got.Role)
		require.True(t, now.Equal(got.CreatedAt))

		byID, err := repo.GetByID(ctx, "id-1")
		require.NoError(t, err)
		require.Equal(t, "sub-1", byID.ExternalSubjectID)
	})

	t.Run("missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindByExternalID(ctx, "nobody")
		require.ErrorIs(t, err, users.ErrNotFound)
		_, err = repo.GetByID(ctx, "nobody")
		require.ErrorIs(t, err, users.ErrNotFound)
	})

	t.Run("duplicate external id", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, users.NewUser("id-1", "sub-1", "one@example.com", now)))
		err := repo.Insert(ctx, users.NewUser("id-2", "sub-1", "one@example.com", now))
		require.ErrorIs(t, err, users.ErrDuplicateKey)

		got, err := repo.FindByExternalID(ctx, "sub-1")
		require.NoError(t, err)
		require.Equal(t, "id-1", got.ID)
	})

	t.Run("invalid user rejected", func(t *testing.T) {
		repo := newRepo(t)
		require.Error(t, repo.Insert(ctx, &users.User{ID: "id-1", Role: users.RoleUser}))
	})

	t.Run("set role", func(t *testing.T) {
		repo := newRepo(t)
		created := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
		require.NoError(t, repo.Insert(ctx, users.NewUser("id-1", "sub-1", "one@example.com", created)))
		require.NoError(t, repo.SetRole(ctx, "id-1", users.RoleAdmin))

		got, err := repo.FindByExternalID(ctx, "sub-1")
		require.NoError(t, err)
		require.Equal(t, users.RoleAdmin, got.Role)
		require.Equal(t, "one@example.com", got.Email)
		require.True(t, created.Equal(got.CreatedAt), "created_at changed to %s", got.CreatedAt)

		byID, err := repo.GetByID(ctx, "id-1")
		require.NoError(t, err)
		require.Equal(t, users.RoleAdmin, byID.Role)

		require.ErrorIs(t, repo.SetRole(ctx, "nobody", users.RoleAdmin), users.ErrNotFound)
	})

	t.Run("concurrent inserts keep one record", func(t *testing.T) {
		repo := newRepo(t)
		const workers = 8

		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			successes  int
			duplicates int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := repo.Insert(ctx, users.NewUser(fmt.Sprintf("id-%d", i), "sub-race", "race@example.com", now))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, users.ErrDuplicateKey):
					duplicates++
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, 1, successes)
		require.Equal(t, workers-1, duplicates)
	})
}
