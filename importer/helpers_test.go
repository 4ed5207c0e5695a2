package importer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/judyrop/catalog-backend/catalog"
	"github.com/judyrop/catalog-backend/imaging"
	"github.com/judyrop/catalog-backend/models"
)

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
	products *catalog.ProductService
	importer *Importer
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db := getTestDB(t)
	log := zap.NewNop()
	storage := imaging.NewStorage(t.TempDir())
	normalizer := imaging.NewNormalizer(storage, imaging.Options{MaxWidth: 1200, Quality: 80}, log, nil)
	tree := catalog.NewCategoryTree(db, log, catalog.FolderHook(storage, catalog.Slugify))
	products := catalog.NewProductService(db, normalizer, catalog.Slugify, log)
	return &fixture{
		db:       db,
		storage:  storage,
		products: products,
		importer: New(db, tree, products, storage, catalog.Slugify, opts, log, nil),
	}
}

// importCSV joins lines into a CSV file and imports it as products.
func (f *fixture) importCSV(t *testing.T, lines ...string) *Report {
	t.Helper()
	report, err := f.importer.ImportProducts(t.Context(), strings.NewReader(strings.Join(lines, "\n")), FormatCSV)
	require.NoError(t, err)
	return report
}

func (f *fixture) putImage(t *testing.T, ref string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, f.storage.Write(ref, buf.Bytes()))
}

func (f *fixture) productCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Product{}).Count(&n).Error)
	return n
}

const productHeader = "name,description,price,category,image,stock,featured,accessories"
