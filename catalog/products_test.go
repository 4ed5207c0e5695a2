package catalog

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judyrop/catalog-backend/imaging"
	"github.com/judyrop/catalog-backend/models"
)

func TestCreateProductNormalizesUpload(t *testing.T) {
	f := newFixture(t)
	tools := f.category(t, "Herramientas", nil)

	p, err := f.products.Create(t.Context(), ProductInput{
		Name:       "Taladro",
		Price:      decimal.RequireFromString("1499.999"),
		CategoryID: &tools.ID,
		Image:      imaging.Uploaded{Filename: "taladro.png", Data: pngBytes(t, 1600, 800, 10)},
		Stock:      3,
	})
	require.NoError(t, err)
	assert.Equal(t, "herramientas/taladro.webp", p.Image)
	assert.NotEmpty(t, p.ImageDigest)
	assert.True(t, f.storage.Exists(p.Image))
	assert.Equal(t, "1500.00", p.Price.StringFixed(2))
}

func TestResaveWithSameUploadKeepsStoredBytes(t *testing.T) {
	f := newFixture(t)
	tools := f.category(t, "Herramientas", nil)
	upload := imaging.Uploaded{Filename: "llave.png", Data: pngBytes(t, 300, 300, 40)}

	p, err := f.products.Create(t.Context(), ProductInput{
		Name: "Llave", Price: decimal.NewFromInt(90), CategoryID: &tools.ID, Image: upload,
	})
	require.NoError(t, err)
	before, err := os.ReadFile(f.storage.Path(p.Image))
	require.NoError(t, err)
	infoBefore, err := os.Stat(f.storage.Path(p.Image))
	require.NoError(t, err)

	updated, err := f.products.Update(t.Context(), p.ID, ProductInput{
		Name: "Llave inglesa", Price: decimal.NewFromInt(95), CategoryID: &tools.ID, Image: upload, Stock: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, p.Image, updated.Image)
	assert.Equal(t, "Llave inglesa", updated.Name)
	assert.Equal(t, uint(7), updated.Stock)

	after, err := os.ReadFile(f.storage.Path(p.Image))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	infoAfter, err := os.Stat(f.storage.Path(p.Image))
	require.NoError(t, err)
	assert.Equal(t, infoBefore.ModTime(), infoAfter.ModTime())

	kept, err := f.products.Update(t.Context(), p.ID, ProductInput{Name: "Llave inglesa", Price: decimal.NewFromInt(95)})
	require.NoError(t, err)
	assert.Equal(t, p.Image, kept.Image)
	assert.Nil(t, kept.CategoryID)
}

func TestSaveWithUndecodableImageAborts(t *testing.T) {
	f := newFixture(t)

	_, err := f.products.Create(t.Context(), ProductInput{
		Name:  "Broken",
		Price: decimal.NewFromInt(1),
		Image: imaging.Uploaded{Filename: "broken.jpg", Data: []byte("garbage")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, imaging.ErrImageDecode)

	var count int64
	require.NoError(t, f.db.Model(&models.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProductValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.products.Create(t.Context(), ProductInput{Name: "Saw", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)

	_, err = f.products.Create(t.Context(), ProductInput{Name: "Saw", Price: decimal.NewFromInt(2)})
	assert.ErrorIs(t, err, ErrUniqueness)

	_, err = f.products.Create(t.Context(), ProductInput{Name: "Nail", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.products.Create(t.Context(), ProductInput{Name: "Screw", Price: decimal.NewFromInt(1), Stock: -2})
	assert.ErrorIs(t, err, ErrInvalidInput)

	missing := uint(77)
	_, err = f.products.Create(t.Context(), ProductInput{Name: "Bolt", Price: decimal.NewFromInt(1), CategoryID: &missing})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.products.Update(t.Context(), 999, ProductInput{Name: "Ghost", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccessoriesAreDirected(t *testing.T) {
	f := newFixture(t)
	drill, err := f.products.Create(t.Context(), ProductInput{Name: "Drill", Price: decimal.NewFromInt(100)})
	require.NoError(t, err)
	bit, err := f.products.Create(t.Context(), ProductInput{Name: "Bit", Price: decimal.NewFromInt(5)})
	require.NoError(t, err)

	require.NoError(t, f.products.SetAccessories(t.Context(), drill.ID, []uint{bit.ID, bit.ID}))

	loaded, err := f.products.Get(t.Context(), drill.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Accessories, 1)
	assert.Equal(t, "Bit", loaded.Accessories[0].Name)

	inverse, err := f.products.Get(t.Context(), bit.ID)
	require.NoError(t, err)
	assert.Empty(t, inverse.Accessories)

	err = f.products.SetAccessories(t.Context(), drill.ID, []uint{drill.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = f.products.SetAccessories(t.Context(), drill.ID, []uint{12345})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, f.products.SetAccessories(t.Context(), drill.ID, []uint{}))
	loaded, err = f.products.Get(t.Context(), drill.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Accessories)
}

func TestDeleteProductRemovesLinks(t *testing.T) {
	f := newFixture(t)
	drill, err := f.products.Create(t.Context(), ProductInput{Name: "Drill", Price: decimal.NewFromInt(100)})
	require.NoError(t, err)
	bit, err := f.products.Create(t.Context(), ProductInput{Name: "Bit", Price: decimal.NewFromInt(5), AccessoryIDs: []uint{}})
	require.NoError(t, err)
	require.NoError(t, f.products.SetAccessories(t.Context(), drill.ID, []uint{bit.ID}))

	require.NoError(t, f.products.Delete(t.Context(), bit.ID))

	loaded, err := f.products.Get(t.Context(), drill.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Accessories)
	assert.ErrorIs(t, f.products.Delete(t.Context(), bit.ID), ErrNotFound)
}

func TestUploadsWithSameFileNameGetTheirOwnFiles(t *testing.T) {
	f := newFixture(t)
	tools := f.category(t, "Tools", nil)

	drill, err := f.products.Create(t.Context(), ProductInput{
		Name: "Drill", Price: decimal.NewFromInt(10), CategoryID: &tools.ID,
		Image: imaging.Uploaded{Filename: "photo.png", Data: pngBytes(t, 60, 40, 10)},
	})
	require.NoError(t, err)
	drillBytes, err := os.ReadFile(f.storage.Path(drill.Image))
	require.NoError(t, err)

	saw, err := f.products.Create(t.Context(), ProductInput{
		Name: "Saw", Price: decimal.NewFromInt(20), CategoryID: &tools.ID,
		Image: imaging.Uploaded{Filename: "photo.png", Data: pngBytes(t, 80, 20, 200)},
	})
	require.NoError(t, err)

	assert.Equal(t, "tools/photo.webp", drill.Image)
	assert.Equal(t, "tools/photo_1.webp", saw.Image)
	after, err := os.ReadFile(f.storage.Path(drill.Image))
	require.NoError(t, err)
	assert.Equal(t, drillBytes, after)

	// Replacing its own image reuses the file the product already holds.
	saw, err = f.products.Update(t.Context(), saw.ID, ProductInput{
		Name: "Saw", Price: decimal.NewFromInt(20), CategoryID: &tools.ID,
		Image: imaging.Uploaded{Filename: "photo.png", Data: pngBytes(t, 90, 30, 90)},
	})
	require.NoError(t, err)
	assert.Equal(t, "tools/photo_1.webp", saw.Image)
	after, err = os.ReadFile(f.storage.Path(drill.Image))
	require.NoError(t, err)
	assert.Equal(t, drillBytes, after)
}
