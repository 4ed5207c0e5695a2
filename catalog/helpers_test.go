package catalog

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/judyrop/catalog-backend/imaging"
	"github.com/judyrop/catalog-backend/models"
)

// getTestDB opens a private in-memory database for one test.
func getTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

type fixture struct {
	db       *gorm.DB
	storage  *imaging.Storage
	tree     *CategoryTree
	products *ProductService
	resolver *Resolver
	views    *Views
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := getTestDB(t)
	log := zap.NewNop()
	storage := imaging.NewStorage(t.TempDir())
	normalizer := imaging.NewNormalizer(storage, imaging.Options{MaxWidth: 1200, Quality: 80}, log, nil)
	tree := NewCategoryTree(db, log, FolderHook(storage, Slugify))
	products := NewProductService(db, normalizer, Slugify, log)
	resolver := NewResolver(db)
	return &fixture{
		db:       db,
		storage:  storage,
		tree:     tree,
		products: products,
		resolver: resolver,
		views:    NewViews(db, DefaultSettings(), tree, resolver, products),
	}
}

func (f *fixture) category(t *testing.T, name string, parent *models.Category) *models.Category {
	t.Helper()
	var parentID *uint
	if parent != nil {
		parentID = &parent.ID
	}
	c, err := f.tree.Create(t.Context(), name, parentID)
	require.NoError(t, err)
	return c
}

// product inserts a row directly, bypassing image normalization.
func (f *fixture) product(t *testing.T, name string, cat *models.Category, image string) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Price: decimal.RequireFromString("10.00"), Image: image}
	if cat != nil {
		p.CategoryID = &cat.ID
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func pngBytes(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
