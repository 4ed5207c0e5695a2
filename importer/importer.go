// Package importer loads products and employees from CSV or XLSX files and
// writes them back out in the same column schema.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/judyrop/catalog-backend/catalog"
	"github.com/judyrop/catalog-backend/imaging"
	"github.com/judyrop/catalog-backend/models"
	"github.com/judyrop/catalog-backend/pkg/metrics"
)

type Options struct {
	// CreateMissingCategories creates unknown category names as top-level
	// categories instead of failing the row.
	CreateMissingCategories bool
}

type Importer struct {
	db       *gorm.DB
	tree     *catalog.CategoryTree
	products *catalog.ProductService
	storage  *imaging.Storage
	slugify  catalog.Slugifier
	opts     Options
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func New(db *gorm.DB, tree *catalog.CategoryTree, products *catalog.ProductService, storage *imaging.Storage,
	slugify catalog.Slugifier, opts Options, log *zap.Logger, m *metrics.Metrics) *Importer {
	return &Importer{
		db:       db,
		tree:     tree,
		products: products,
		storage:  storage,
		slugify:  slugify,
		opts:     opts,
		log:      log,
		metrics:  m,
	}
}

// ImportProducts reads a product file and imports every row.
func (im *Importer) ImportProducts(ctx context.Context, r io.Reader, format Format) (*Report, error) {
	rows, err := ReadTable(r, format)
	if err != nil {
		return nil, err
	}
	recs, err := Records(rows, productColumns, "name")
	if err != nil {
		return nil, err
	}
	return im.Products(ctx, recs), nil
}

// Products imports rows in order, each in its own transaction, so a failed
// row never undoes the rows before it. Accessories are linked in a second
// pass once every row of the batch exists.
func (im *Importer) Products(ctx context.Context, recs []Record) *Report {
	report := &Report{Rows: make([]Outcome, len(recs))}
	saved := make([]uint, len(recs))

	for i, rec := range recs {
		out := Outcome{Line: rec.Line, Key: rec.Get("name")}
		var created []*models.Category
		err := im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			id, status, err := im.productRow(ctx, tx, rec, &created)
			if err != nil {
				return err
			}
			saved[i], out.Status = id, status
			return nil
		})
		if err != nil {
			out.Status, out.Err = StatusFailed, err
		} else {
			for _, cat := range created {
				im.tree.AfterCreate(ctx, cat)
			}
		}
		report.Rows[i] = out
	}

	for i, rec := range recs {
		cell, ok := rec.Lookup("accessories")
		if !ok || saved[i] == 0 {
			continue
		}
		out := &report.Rows[i]
		err := im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			changed, warnings, err := im.linkAccessories(ctx, tx, saved[i], cell)
			out.Warnings = warnings
			if changed && out.Status == StatusSkipped {
				out.Status = StatusUpdated
			}
			return err
		})
		if err != nil {
			out.Status, out.Err = StatusFailed, err
		}
	}

	im.finish("product", report)
	return report
}

func (im *Importer) finish(entity string, report *Report) {
	for _, o := range report.Rows {
		im.metrics.ObserveImport(entity, string(o.Status))
		if o.Err != nil {
			im.log.Warn("import row failed", zap.String("entity", entity), zap.Int("line", o.Line),
				zap.String("key", o.Key), zap.Error(o.Err))
		}
		for _, w := range o.Warnings {
			im.log.Warn("import row warning", zap.String("entity", entity), zap.Int("line", o.Line),
				zap.String("key", o.Key), zap.Error(w))
		}
	}
	report.tally()
	im.log.Info("import finished",
		zap.String("entity", entity),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
}

// productRow upserts one row by name. Columns absent from the file keep the
// stored value; a row equal to what is stored is skipped without a write.
// Categories it creates are appended to created.
func (im *Importer) productRow(ctx context.Context, tx *gorm.DB, rec Record, created *[]*models.Category) (uint, Status, error) {
	name := rec.Get("name")
	if name == "" {
		return 0, "", invalidValue("name", name, errors.New("required"))
	}
	products := im.products.WithDB(tx)
	existing, err := products.FindByName(ctx, name)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return 0, "", err
	}

	in := catalog.ProductInput{Name: name}
	image := ""
	if existing != nil {
		in.Description = existing.Description
		in.Price = existing.Price
		in.CategoryID = existing.CategoryID
		in.Stock = int(existing.Stock)
		in.Featured = existing.Featured
		image = existing.Image
	}

	if v, ok := rec.Lookup("image"); ok {
		if v == "" {
			image, in.ClearImage = "", true
		} else {
			ref, err := im.resolveImage(v)
			if err != nil {
				return 0, "", err
			}
			own := ""
			if existing != nil {
				own = existing.Image
			}
			image = im.canonicalRef(ref, own)
			if existing == nil || existing.Image != image {
				in.Image = imaging.StoredPath(ref)
			}
		}
	}
	if v, ok := rec.Lookup("description"); ok {
		in.Description = v
	}
	if v := rec.Get("price"); v != "" {
		if in.Price, err = parsePrice(v); err != nil {
			return 0, "", err
		}
	} else if existing == nil {
		return 0, "", invalidValue("price", v, errors.New("required"))
	}
	if v := rec.Get("stock"); v != "" {
		if in.Stock, err = parseStock(v); err != nil {
			return 0, "", err
		}
	}
	if v, ok := rec.Lookup("featured"); ok {
		if in.Featured, err = parseBool("featured", v); err != nil {
			return 0, "", err
		}
	}
	if v, ok := rec.Lookup("category"); ok {
		in.CategoryID = nil
		if v != "" {
			cat, err := im.category(ctx, tx, v, created)
			if err != nil {
				return 0, "", err
			}
			in.CategoryID = &cat.ID
		}
	}

	if existing == nil {
		p, err := products.Create(ctx, in)
		if err != nil {
			return 0, "", err
		}
		return p.ID, StatusCreated, nil
	}
	if unchanged(existing, in, image) {
		return existing.ID, StatusSkipped, nil
	}
	p, err := products.Update(ctx, existing.ID, in)
	if err != nil {
		return 0, "", err
	}
	return p.ID, StatusUpdated, nil
}

// resolveImage maps a cell to a storage reference. Folder segments are
// folded the way category folders are named; the file name is kept as is.
func (im *Importer) resolveImage(cell string) (string, error) {
	ref, err := imaging.CleanRef(cell)
	if err != nil {
		return "", invalidValue("image", cell, err)
	}
	dir, file := path.Split(ref)
	var parts []string
	for _, seg := range strings.Split(dir, "/") {
		if s := im.slugify(seg); s != "" {
			parts = append(parts, s)
		}
	}
	ref = path.Join(append(parts, file)...)
	if !im.storage.Exists(ref) {
		return "", &MissingAssetError{Cell: cell, Ref: ref}
	}
	return ref, nil
}

func (im *Importer) category(ctx context.Context, tx *gorm.DB, name string, created *[]*models.Category) (*models.Category, error) {
	tree := im.tree.WithDB(tx)
	cat, err := tree.FindByName(ctx, name)
	if err == nil {
		return cat, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return nil, err
	}
	if !im.opts.CreateMissingCategories {
		return nil, &UnresolvedReferenceError{Kind: "category", Name: name}
	}
	cat, err = tree.Create(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	*created = append(*created, cat)
	im.log.Info("category created by import", zap.Uint("id", cat.ID), zap.String("name", cat.Name))
	return cat, nil
}

// linkAccessories resolves the comma-separated names of cell and replaces
// the accessory set when it differs. Unknown names become warnings.
func (im *Importer) linkAccessories(ctx context.Context, tx *gorm.DB, id uint, cell string) (bool, []error, error) {
	products := im.products.WithDB(tx)
	p, err := products.Get(ctx, id)
	if err != nil {
		return false, nil, err
	}

	var warnings []error
	var ids []uint
	for _, name := range splitNames(cell) {
		a, err := products.FindByName(ctx, name)
		if errors.Is(err, catalog.ErrNotFound) {
			warnings = append(warnings, &UnresolvedReferenceError{Kind: "accessory", Name: name})
			continue
		}
		if err != nil {
			return false, warnings, err
		}
		if a.ID == p.ID {
			warnings = append(warnings, fmt.Errorf("%w: %q cannot be its own accessory", catalog.ErrInvalidInput, name))
			continue
		}
		if !slices.Contains(ids, a.ID) {
			ids = append(ids, a.ID)
		}
	}

	current := make([]uint, 0, len(p.Accessories))
	for _, a := range p.Accessories {
		current = append(current, a.ID)
	}
	if sameIDs(current, ids) {
		return false, warnings, nil
	}
	if err := products.SetAccessories(ctx, p.ID, ids); err != nil {
		return false, warnings, err
	}
	return true, warnings, nil
}

func unchanged(p *models.Product, in catalog.ProductInput, image string) bool {
	return p.Description == in.Description &&
		p.Price.Equal(in.Price.Round(2)) &&
		sameCategory(p.CategoryID, in.CategoryID) &&
		p.Stock == uint(in.Stock) &&
		p.Featured == in.Featured &&
		p.Image == image
}

func sameCategory(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameIDs(a, b []uint) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// canonicalRef is the reference a stored source ends up under for a
// product currently holding own.
func (im *Importer) canonicalRef(ref, own string) string {
	if imaging.IsCanonical(ref) {
		return ref
	}
	return im.storage.Available(imaging.CanonicalRef(ref), own)
}

func splitNames(cell string) []string {
	var names []string
	for _, n := range strings.Split(cell, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func parsePrice(v string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimPrefix(v, "$"), ",", ""))
	if err != nil {
		return decimal.Decimal{}, invalidValue("price", v, err)
	}
	if price.IsNegative() {
		return decimal.Decimal{}, invalidValue("price", v, errors.New("negative"))
	}
	return price, nil
}

func parseStock(v string) (int, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0, invalidValue("stock", v, err)
	}
	if !d.IsInteger() || d.IsNegative() {
		return 0, invalidValue("stock", v, errors.New("must be a whole number of units"))
	}
	return int(d.IntPart()), nil
}

func parseBool(column, v string) (bool, error) {
	switch strings.ToLower(v) {
	case "", "0", "false", "no", "n":
		return false, nil
	case "1", "true", "si", "sí", "yes", "y", "x":
		return true, nil
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b, nil
	}
	return false, invalidValue(column, v, nil)
}
