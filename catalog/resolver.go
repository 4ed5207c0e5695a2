package catalog

import (
	"context"

	"gorm.io/gorm"

	"github.com/judyrop/catalog-backend/models"
)

const hasImage = "image IS NOT NULL AND image <> ''"

// Resolver picks the product image that illustrates a category: the first
// imaged product of the category itself, else the first imaged product of
// any of its immediate children. "First" is id order. Categories are at most
// two levels deep, so the fallback never needs to recurse.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// CoverImage returns nil, without error, when no cover exists, including
// for unknown category ids.
func (r *Resolver) CoverImage(ctx context.Context, categoryID uint) (*models.Product, error) {
	db := r.db.WithContext(ctx)

	var direct []models.Product
	if err := db.Where(hasImage).Where("category_id = ?", categoryID).
		Order("id").Limit(1).Find(&direct).Error; err != nil {
		return nil, err
	}
	if len(direct) > 0 {
		return &direct[0], nil
	}

	children := db.Model(&models.Category{}).Select("id").Where("parent_id = ?", categoryID)
	var fromChild []models.Product
	if err := db.Where(hasImage).Where("category_id IN (?)", children).
		Order("id").Limit(1).Find(&fromChild).Error; err != nil {
		return nil, err
	}
	if len(fromChild) > 0 {
		return &fromChild[0], nil
	}
	return nil, nil
}

// CoverImages resolves every category at once with two queries: the
// category parent links, and the first imaged product per category. The
// result has an entry for each category that has a cover and agrees with
// CoverImage for every id.
func (r *Resolver) CoverImages(ctx context.Context) (map[uint]*models.Product, error) {
	db := r.db.WithContext(ctx)

	var cats []models.Category
	if err := db.Select("id", "parent_id").Find(&cats).Error; err != nil {
		return nil, err
	}

	firstIDs := db.Model(&models.Product{}).Select("MIN(id)").
		Where(hasImage).Where("category_id IS NOT NULL").Group("category_id")
	var firsts []models.Product
	if err := db.Where("id IN (?)", firstIDs).Find(&firsts).Error; err != nil {
		return nil, err
	}

	direct := make(map[uint]*models.Product, len(firsts))
	for i := range firsts {
		direct[*firsts[i].CategoryID] = &firsts[i]
	}
	children := make(map[uint][]uint)
	for _, c := range cats {
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c.ID)
		}
	}

	covers := make(map[uint]*models.Product)
	for _, c := range cats {
		if p, ok := direct[c.ID]; ok {
			covers[c.ID] = p
			continue
		}
		var best *models.Product
		for _, child := range children[c.ID] {
			if p, ok := direct[child]; ok && (best == nil || p.ID < best.ID) {
				best = p
			}
		}
		if best != nil {
			covers[c.ID] = best
		}
	}
	return covers, nil
}
