package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/andreiashu/bigcty"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "cty.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func fixtureStore(t *testing.T) *bigcty.Store {
	t.Helper()
	doc, err := bigcty.ImportFile(filepath.Join("..", "..", "testdata", "cty.dat"))
	require.NoError(t, err)
	return bigcty.NewStore(doc)
}

func TestExportImport(t *testing.T) {
	db := openTestDB(t)
	s := fixtureStore(t)
	ctx := context.Background()

	require.NoError(t, Export(ctx, db, s))

	var count int64
	require.NoError(t, db.Model(&Prefix{}).Count(&count).Error)
	assert.EqualValues(t, s.Len(), count)

	back, err := Import(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestExportReplacesContents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, Export(ctx, db, fixtureStore(t)))

	doc, err := bigcty.Parse([]byte("Monaco: 14: 27: EU: 43.73: -7.40: -1.0: 3A:\n    3A,=3A2XX;\n    =VER20240401;\n"))
	require.NoError(t, err)
	small := bigcty.NewStore(doc)
	require.NoError(t, Export(ctx, db, small))

	back, err := Import(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 3, back.Len())
	assert.Equal(t, "20240401", back.Version())

	rec, err := back.Get("3A2XX")
	require.NoError(t, err)
	assert.True(t, rec.ExactMatch)
	assert.Equal(t, "3A", rec.PrimaryPrefix)

	_, err = back.Get("DL")
	assert.ErrorIs(t, err, bigcty.ErrNotFound)
}

func TestImportEmpty(t *testing.T) {
	db := openTestDB(t)

	s, err := Import(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "", s.Version())
}

func TestPrimaryPrefixQuery(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Export(context.Background(), db, fixtureStore(t)))

	var rows []Prefix
	require.NoError(t, db.Where(&Prefix{PrimaryPrefix: "HB"}).Order("prefix").Find(&rows).Error)

	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r.Prefix
	}
	assert.Equal(t, []string{"HB", "HB0", "HB9XYZ/P", "HE"}, got)
}

func TestOpenUnsupportedDialect(t *testing.T) {
	_, err := Open("oracle", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported dialect")
}
