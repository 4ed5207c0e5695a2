package catalog

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/judyrop/catalog-backend/models"
)

func TestCreateRejectsDuplicateSibling(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	tools := f.category(t, "Tools", nil)
	garden := f.category(t, "Garden", nil)
	f.category(t, "Electrical", tools)

	_, err := f.tree.Create(ctx, "Electrical", &tools.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUniqueness)
	var uniq *UniquenessError
	require.ErrorAs(t, err, &uniq)
	assert.Equal(t, "Electrical", uniq.Name)
	require.NotNil(t, uniq.ParentID)
	assert.Equal(t, tools.ID, *uniq.ParentID)

	other, err := f.tree.Create(ctx, "Electrical", &garden.ID)
	require.NoError(t, err)
	assert.Equal(t, garden.ID, *other.ParentID)
}

func TestCreateRejectsDuplicateTopLevel(t *testing.T) {
	f := newFixture(t)
	f.category(t, "Tools", nil)

	_, err := f.tree.Create(t.Context(), "Tools", nil)
	assert.ErrorIs(t, err, ErrUniqueness)

	_, err = f.tree.Create(t.Context(), "  ", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateLimitsDepth(t *testing.T) {
	f := newFixture(t)
	tools := f.category(t, "Tools", nil)
	electrical := f.category(t, "Electrical", tools)

	_, err := f.tree.Create(t.Context(), "Cables", &electrical.ID)
	assert.ErrorIs(t, err, ErrCategoryDepth)

	missing := uint(999)
	_, err = f.tree.Create(t.Context(), "Orphan", &missing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRunsFolderHook(t *testing.T) {
	f := newFixture(t)
	f.category(t, "Herramientas Eléctricas", nil)

	info, err := os.Stat(f.storage.Path("herramientas-electricas"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFailingHookKeepsCategory(t *testing.T) {
	f := newFixture(t)
	tree := NewCategoryTree(f.db, zap.NewNop(), func(context.Context, *models.Category) error {
		return errors.New("disk full")
	})

	cat, err := tree.Create(t.Context(), "Tools", nil)
	require.NoError(t, err)
	got, err := tree.Get(t.Context(), cat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tools", got.Name)
}

func TestTransactionBoundTreeDefersHooks(t *testing.T) {
	f := newFixture(t)
	var ran []string
	tree := NewCategoryTree(f.db, zap.NewNop(), func(_ context.Context, c *models.Category) error {
		ran = append(ran, c.Name)
		return nil
	})

	tx := f.db.Begin()
	cat, err := tree.WithDB(tx).Create(t.Context(), "Garden", nil)
	require.NoError(t, err)
	assert.Empty(t, ran)
	require.NoError(t, tx.Rollback().Error)
	assert.Empty(t, ran)

	tx = f.db.Begin()
	cat, err = tree.WithDB(tx).Create(t.Context(), "Garden", nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)
	tree.AfterCreate(t.Context(), cat)
	assert.Equal(t, []string{"Garden"}, ran)
}

func TestPathAndDisplayPath(t *testing.T) {
	f := newFixture(t)
	tools := f.category(t, "Tools", nil)
	electrical := f.category(t, "Electrical", tools)

	var names []string
	for name, err := range f.tree.Path(t.Context(), electrical) {
		require.NoError(t, err)
		names = append(names, name)
	}
	assert.Equal(t, []string{"Tools", "Electrical"}, names)

	display, err := f.tree.DisplayPath(t.Context(), tools)
	require.NoError(t, err)
	assert.Equal(t, "Tools", display)

	display, err = f.tree.DisplayPath(t.Context(), electrical)
	require.NoError(t, err)
	assert.Equal(t, "Tools > Electrical", display)
}

func TestPathStopsEarly(t *testing.T) {
	f := newFixture(t)
	tools := f.category(t, "Tools", nil)
	electrical := f.category(t, "Electrical", tools)

	var first string
	for name := range f.tree.Path(t.Context(), electrical) {
		first = name
		break
	}
	assert.Equal(t, "Tools", first)
}

func TestDeleteCascadesToChildrenAndDetachesProducts(t *testing.T) {
	f := newFixture(t)
	tools := f.category(t, "Tools", nil)
	electrical := f.category(t, "Electrical", tools)
	garden := f.category(t, "Garden", nil)
	drill := f.product(t, "Drill", electrical, "tools/drill.webp")
	hammer := f.product(t, "Hammer", tools, "")
	rake := f.product(t, "Rake", garden, "")

	require.NoError(t, f.tree.Delete(t.Context(), tools.ID))

	var remaining []models.Category
	require.NoError(t, f.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "Garden", remaining[0].Name)

	for _, p := range []*models.Product{drill, hammer} {
		var reloaded models.Product
		require.NoError(t, f.db.First(&reloaded, p.ID).Error)
		assert.Nil(t, reloaded.CategoryID, p.Name)
	}
	var stillThere models.Product
	require.NoError(t, f.db.First(&stillThere, rake.ID).Error)
	assert.Equal(t, garden.ID, *stillThere.CategoryID)

	assert.ErrorIs(t, f.tree.Delete(t.Context(), tools.ID), ErrNotFound)
}

func TestUpdateRenameAndMove(t *testing.T) {
	f := newFixture(t)
	tools := f.category(t, "Tools", nil)
	garden := f.category(t, "Garden", nil)
	electrical := f.category(t, "Electrical", tools)
	f.category(t, "Hoses", garden)

	moved, err := f.tree.Update(t.Context(), electrical.ID, "Electric", &garden.ID)
	require.NoError(t, err)
	assert.Equal(t, "Electric", moved.Name)
	assert.Equal(t, garden.ID, *moved.ParentID)

	_, err = f.tree.Update(t.Context(), electrical.ID, "Hoses", &garden.ID)
	assert.ErrorIs(t, err, ErrUniqueness)

	promoted, err := f.tree.Update(t.Context(), electrical.ID, "Electric", nil)
	require.NoError(t, err)
	assert.Nil(t, promoted.ParentID)
}

func TestUpdateRejectsCycles(t *testing.T) {
	f := newFixture(t)
	tools := f.category(t, "Tools", nil)
	electrical := f.category(t, "Electrical", tools)
	garden := f.category(t, "Garden", nil)

	_, err := f.tree.Update(t.Context(), tools.ID, "Tools", &tools.ID)
	assert.ErrorIs(t, err, ErrCategoryCycle)

	_, err = f.tree.Update(t.Context(), tools.ID, "Tools", &electrical.ID)
	assert.ErrorIs(t, err, ErrCategoryCycle)

	_, err = f.tree.Update(t.Context(), tools.ID, "Tools", &garden.ID)
	assert.ErrorIs(t, err, ErrCategoryDepth)
}

func TestFindByNamePrefersTopLevel(t *testing.T) {
	f := newFixture(t)
	tools := f.category(t, "Tools", nil)
	f.category(t, "Paint", tools)
	top := f.category(t, "Paint", nil)

	found, err := f.tree.FindByName(t.Context(), "Paint")
	require.NoError(t, err)
	assert.Equal(t, top.ID, found.ID)

	_, err = f.tree.FindByName(t.Context(), "paint")
	assert.ErrorIs(t, err, ErrNotFound)
}
