package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskboard/internal/model"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := open(":memory:", logger.Default.LogMode(logger.Silent))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestDocumentRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(setupTestDB(t))

	require.NoError(t, repo.Insert(ctx, &model.Document{Collection: "c1", ID: "d1", OwnerID: "u1", Body: `{"name":"a"}`}))
	require.NoError(t, repo.Insert(ctx, &model.Document{Collection: "c2", ID: "d2", OwnerID: "u2", Body: `{"name":"b"}`}))

	docs, err := repo.List(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d1", docs[0].ID)

	err = repo.Patch(ctx, "c1", "d1", func(body string) (string, error) {
		assert.Equal(t, `{"name":"a"}`, body)
		return `{"name":"z"}`, nil
	})
	require.NoError(t, err)

	docs, err = repo.List(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"z"}`, docs[0].Body)

	require.NoError(t, repo.Delete(ctx, "c1", "d1"))
	require.NoError(t, repo.Delete(ctx, "c1", "d1"))

	docs, err = repo.List(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDocumentRepositoryOwners(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(setupTestDB(t))

	owners, err := repo.Owners(ctx)
	require.NoError(t, err)
	assert.Empty(t, owners)

	require.NoError(t, repo.Insert(ctx, &model.Document{Collection: "c2", ID: "d1", OwnerID: "u2", Body: `{}`}))
	require.NoError(t, repo.Insert(ctx, &model.Document{Collection: "c1", ID: "d2", OwnerID: "u1", Body: `{}`}))
	require.NoError(t, repo.Insert(ctx, &model.Document{Collection: "c1", ID: "d3", OwnerID: "u1", Body: `{}`}))

	owners, err = repo.Owners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, owners)

	require.NoError(t, repo.Delete(ctx, "c2", "d1"))
	owners, err = repo.Owners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, owners)
}

func TestDocumentRepositoryPatchMissing(t *testing.T) {
	repo := NewDocumentRepository(setupTestDB(t))

	called := false
	err := repo.Patch(context.Background(), "c1", "missing", func(body string) (string, error) {
		called = true
		return body, nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, called)
}

func TestUserRepositoryCreateDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(setupTestDB(t))

	email := "ada@example.com"
	require.NoError(t, repo.Create(ctx, &model.User{ID: "1", Email: &email}))
	err := repo.Create(ctx, &model.User{ID: "2", Email: &email})
	assert.ErrorIs(t, err, ErrUserExists)

	require.NoError(t, repo.Create(ctx, &model.User{ID: "3", Anonymous: true}))
	require.NoError(t, repo.Create(ctx, &model.User{ID: "4", Anonymous: true}))

	found, err := repo.FindByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, "1", found.ID)

	_, err = repo.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepositoryUpsertFromTelegram(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(setupTestDB(t))

	first, err := repo.UpsertFromTelegram(ctx, 77, "id-1", "Ada", "")
	require.NoError(t, err)
	assert.Equal(t, "id-1", first.ID)

	second, err := repo.UpsertFromTelegram(ctx, 77, "id-2", "Ada L", "https://example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "id-1", second.ID)
	assert.Equal(t, "Ada L", second.DisplayName)

	users, err := repo.ListWithTelegram(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
