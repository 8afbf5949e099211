package users

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/models"
	badgerstore "github.com/ternarybob/tenderdock/internal/storage/badger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := arbor.NewLogger()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewService(badgerstore.NewRecordStorage(db, logger), logger)
}

func TestResolveUnknownUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Resolve(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrUserNotRegistered)
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, &models.ValidationUser{
		Identity: "Alex@Example.com",
		Email:    "alex@example.com",
		Role:     "estimator",
	}))

	user, err := svc.Resolve(ctx, "  alex@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "estimator", user.Role)
}

func TestRegisterRejectsEmptyIdentity(t *testing.T) {
	svc := newTestService(t)

	err := svc.Register(context.Background(), &models.ValidationUser{Identity: "   "})
	assert.Error(t, err)
}

func TestLoadFromDir(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dir := t.TempDir()

	content := `
["jane.doe"]
display_name = "Jane Doe"
email = "jane.doe@example.com"
role = "estimator"

["mark.lee@example.com"]
display_name = "Mark Lee"
email = "mark.lee@example.com"
role = "reviewer"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.toml"), []byte(content), 0644))
	// Non-TOML files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not users"), 0644))

	require.NoError(t, svc.LoadFromDir(ctx, dir))

	jane, err := svc.Resolve(ctx, "jane.doe")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", jane.DisplayName)

	mark, err := svc.Resolve(ctx, "mark.lee@example.com")
	require.NoError(t, err)
	assert.Equal(t, "reviewer", mark.Role)
}

func TestLoadFromDirMissingDirectoryIsNotFatal(t *testing.T) {
	svc := newTestService(t)
	assert.NoError(t, svc.LoadFromDir(context.Background(), "/nonexistent/users"))
}

func TestLoadFromDirSkipsMalformedFiles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.toml"), []byte("not = [valid"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.toml"), []byte("[\"ok.user\"]\nrole = \"estimator\"\n"), 0644))

	require.NoError(t, svc.LoadFromDir(ctx, dir))

	user, err := svc.Resolve(ctx, "ok.user")
	require.NoError(t, err)
	assert.Equal(t, "estimator", user.Role)
}
