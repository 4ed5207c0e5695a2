// Package catalog implements the category tree, product persistence, cover
// image resolution and the read models behind the public pages.
package catalog

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/judyrop/catalog-backend/imaging"
	"github.com/judyrop/catalog-backend/models"
)

// CategoryHook runs synchronously after a category has been committed. A
// failing hook is logged; the category stays created.
type CategoryHook func(ctx context.Context, c *models.Category) error

// FolderHook creates the storage folder of a new category.
func FolderHook(storage *imaging.Storage, slugify Slugifier) CategoryHook {
	return func(_ context.Context, c *models.Category) error {
		return storage.EnsureDir(slugify(c.Name))
	}
}

type CategoryTree struct {
	db          *gorm.DB
	log         *zap.Logger
	afterCreate []CategoryHook

	// set on trees bound to a caller's transaction; see AfterCreate
	deferHooks bool
}

func NewCategoryTree(db *gorm.DB, log *zap.Logger, afterCreate ...CategoryHook) *CategoryTree {
	return &CategoryTree{db: db, log: log, afterCreate: afterCreate}
}

// WithDB returns a copy of the tree bound to db, typically a transaction.
// The copy does not run post-create hooks, since the caller's transaction
// may still roll back; the caller runs AfterCreate once it has committed.
func (t *CategoryTree) WithDB(db *gorm.DB) *CategoryTree {
	cp := *t
	cp.db = db
	cp.deferHooks = true
	return &cp
}

// AfterCreate runs the post-create hooks for c.
func (t *CategoryTree) AfterCreate(ctx context.Context, c *models.Category) {
	for _, hook := range t.afterCreate {
		if err := hook(ctx, c); err != nil {
			t.log.Warn("category post-create hook failed", zap.Uint("id", c.ID), zap.String("name", c.Name), zap.Error(err))
		}
	}
}

// Create adds a category under parentID (nil for top level). A sibling with
// the same name yields a *UniquenessError.
func (t *CategoryTree) Create(ctx context.Context, name string, parentID *uint) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}

	cat := &models.Category{Name: name, ParentID: parentID}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if parentID != nil {
			parent, err := getCategory(tx, *parentID)
			if err != nil {
				return err
			}
			if !parent.IsTopLevel() {
				return fmt.Errorf("%w: %q is already a subcategory", ErrCategoryDepth, parent.Name)
			}
		}
		if err := checkSiblingName(tx, name, parentID, 0); err != nil {
			return err
		}
		return tx.Create(cat).Error
	})
	if err != nil {
		return nil, err
	}

	t.log.Info("category created", zap.Uint("id", cat.ID), zap.String("name", cat.Name))
	if !t.deferHooks {
		t.AfterCreate(ctx, cat)
	}
	return cat, nil
}

// Update renames and/or moves a category.
func (t *CategoryTree) Update(ctx context.Context, id uint, name string, parentID *uint) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}

	var cat *models.Category
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if cat, err = getCategory(tx, id); err != nil {
			return err
		}
		if parentID != nil {
			if *parentID == id {
				return ErrCategoryCycle
			}
			parent, err := getCategory(tx, *parentID)
			if err != nil {
				return err
			}
			descendants, err := descendantIDs(tx, id)
			if err != nil {
				return err
			}
			for _, d := range descendants {
				if d == parent.ID {
					return ErrCategoryCycle
				}
			}
			if !parent.IsTopLevel() || len(descendants) > 1 {
				return fmt.Errorf("%w: cannot nest %q under %q", ErrCategoryDepth, cat.Name, parent.Name)
			}
		}
		if err := checkSiblingName(tx, name, parentID, id); err != nil {
			return err
		}
		cat.Name = name
		cat.ParentID = parentID
		return tx.Model(cat).Select("Name", "ParentID").Updates(cat).Error
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// Delete removes the category and all of its descendants. Their products
// stay, without a category.
func (t *CategoryTree) Delete(ctx context.Context, id uint) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getCategory(tx, id); err != nil {
			return err
		}
		ids, err := descendantIDs(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Product{}).Where("category_id IN ?", ids).
			Update("category_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.Category{}).Error; err != nil {
			return err
		}
		t.log.Info("category deleted", zap.Uint("id", id), zap.Int("removed", len(ids)))
		return nil
	})
}

func (t *CategoryTree) Get(ctx context.Context, id uint) (*models.Category, error) {
	return getCategory(t.db.WithContext(ctx), id)
}

// FindByName resolves a category by exact name, preferring a top-level
// match and then the oldest.
func (t *CategoryTree) FindByName(ctx context.Context, name string) (*models.Category, error) {
	var cats []models.Category
	err := t.db.WithContext(ctx).Where("name = ?", name).
		Order("CASE WHEN parent_id IS NULL THEN 0 ELSE 1 END").Order("id").
		Limit(1).Find(&cats).Error
	if err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		return nil, fmt.Errorf("category %q: %w", name, ErrNotFound)
	}
	return &cats[0], nil
}

func (t *CategoryTree) TopLevel(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	err := t.db.WithContext(ctx).Where("parent_id IS NULL").Order("name").Find(&cats).Error
	return cats, err
}

func (t *CategoryTree) Children(ctx context.Context, id uint) ([]models.Category, error) {
	var cats []models.Category
	err := t.db.WithContext(ctx).Where("parent_id = ?", id).Order("name").Find(&cats).Error
	return cats, err
}

// Ancestry returns the chain from the root down to c, c included.
func (t *CategoryTree) Ancestry(ctx context.Context, c *models.Category) ([]models.Category, error) {
	chain := []models.Category{*c}
	seen := map[uint]bool{c.ID: true}
	db := t.db.WithContext(ctx)
	for cur := c; cur.ParentID != nil; {
		if seen[*cur.ParentID] {
			return nil, fmt.Errorf("category %d: %w", cur.ID, ErrCategoryCycle)
		}
		parent, err := getCategory(db, *cur.ParentID)
		if err != nil {
			return nil, err
		}
		seen[parent.ID] = true
		chain = append(chain, *parent)
		cur = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Path lazily yields the names from the root to c. Nothing is loaded until
// the sequence is ranged over; a lookup failure is yielded once as the error.
func (t *CategoryTree) Path(ctx context.Context, c *models.Category) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		chain, err := t.Ancestry(ctx, c)
		if err != nil {
			yield("", err)
			return
		}
		for _, cat := range chain {
			if !yield(cat.Name, nil) {
				return
			}
		}
	}
}

// DisplayPath renders the path as "Parent > Child".
func (t *CategoryTree) DisplayPath(ctx context.Context, c *models.Category) (string, error) {
	var names []string
	for name, err := range t.Path(ctx, c) {
		if err != nil {
			return "", err
		}
		names = append(names, name)
	}
	return strings.Join(names, " > "), nil
}

func getCategory(db *gorm.DB, id uint) (*models.Category, error) {
	var cat models.Category
	if err := db.First(&cat, id).Error; err != nil {
		return nil, notFound(err, "category", id)
	}
	return &cat, nil
}

func checkSiblingName(db *gorm.DB, name string, parentID *uint, exclude uint) error {
	q := db.Model(&models.Category{}).Where("name = ?", name)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	if exclude != 0 {
		q = q.Where("id <> ?", exclude)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return &UniquenessError{Entity: "category", Name: name, ParentID: parentID}
	}
	return nil
}

// descendantIDs returns categoryID followed by every category below it.
func descendantIDs(db *gorm.DB, categoryID uint) ([]uint, error) {
	ids := []uint{categoryID}
	seen := map[uint]bool{categoryID: true}
	for frontier := []uint{categoryID}; len(frontier) > 0; {
		var children []uint
		if err := db.Model(&models.Category{}).Where("parent_id IN ?", frontier).
			Pluck("id", &children).Error; err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, id := range children {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
				frontier = append(frontier, id)
			}
		}
	}
	return ids, nil
}
