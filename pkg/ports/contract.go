package ports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRepositoryContract runs a suite of tests to verify that a Repository
// implementation adheres to the defined interface contract. newEntity must
// return distinct, comparable entities for distinct seeds.
func RunRepositoryContract[T any](t *testing.T, repo Repository[T], newEntity func(seed string) T) {
	ctx := context.Background()

	t.Run("Save and Get", func(t *testing.T) {
		id := repo.GenerateID()
		entity := newEntity("save-get")

		require.NoError(t, repo.Save(ctx, id, entity), "Save should not return error")

		loaded, err := repo.Get(ctx, id)
		require.NoError(t, err, "Get should not return error")
		require.NotNil(t, loaded)
		assert.Equal(t, entity, *loaded)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		loaded, err := repo.Get(ctx, "non-existent-"+repo.GenerateID())
		assert.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("Save is idempotent", func(t *testing.T) {
		id := repo.GenerateID()
		entity := newEntity("idempotent")
		require.NoError(t, repo.Save(ctx, id, entity))
		require.NoError(t, repo.Save(ctx, id, entity))

		loaded, err := repo.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, entity, *loaded)
	})

	t.Run("Delete", func(t *testing.T) {
		id := repo.GenerateID()
		require.NoError(t, repo.Save(ctx, id, newEntity("delete")))

		existed, err := repo.Delete(ctx, id)
		require.NoError(t, err, "Delete should not return error")
		assert.True(t, existed)

		loaded, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, loaded, "Get after Delete should return nil")

		existed, err = repo.Delete(ctx, id)
		require.NoError(t, err)
		assert.False(t, existed, "second Delete reports absence")
	})

	t.Run("List", func(t *testing.T) {
		id1, id2 := repo.GenerateID(), repo.GenerateID()
		e1, e2 := newEntity("list-1"), newEntity("list-2")
		require.NoError(t, repo.Save(ctx, id1, e1))
		require.NoError(t, repo.Save(ctx, id2, e2))
		defer func() {
			_, _ = repo.Delete(ctx, id1)
			_, _ = repo.Delete(ctx, id2)
		}()

		all, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, all, e1)
		assert.Contains(t, all, e2)
	})

	t.Run("GenerateID is unique", func(t *testing.T) {
		assert.NotEqual(t, repo.GenerateID(), repo.GenerateID())
	})
}
