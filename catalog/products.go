package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/judyrop/catalog-backend/imaging"
	"github.com/judyrop/catalog-backend/models"
)

// ProductInput is the full set of writable product fields.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	CategoryID  *uint
	// Image is nil to keep the current image.
	Image      imaging.Source
	ClearImage bool
	Stock      int
	Featured   bool
	// AccessoryIDs is nil to keep the current accessories.
	AccessoryIDs []uint
}

type ProductService struct {
	db         *gorm.DB
	normalizer *imaging.Normalizer
	slugify    Slugifier
	log        *zap.Logger
}

func NewProductService(db *gorm.DB, normalizer *imaging.Normalizer, slugify Slugifier, log *zap.Logger) *ProductService {
	return &ProductService{db: db, normalizer: normalizer, slugify: slugify, log: log}
}

// WithDB returns a copy of the service bound to db, typically a transaction.
func (s *ProductService) WithDB(db *gorm.DB) *ProductService {
	cp := *s
	cp.db = db
	return &cp
}

func (s *ProductService) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	return s.save(ctx, 0, in)
}

func (s *ProductService) Update(ctx context.Context, id uint, in ProductInput) (*models.Product, error) {
	return s.save(ctx, id, in)
}

// save is one read-modify-write: it reads the stored image state, lets the
// normalizer decide whether to convert, then writes the row.
func (s *ProductService) save(ctx context.Context, id uint, in ProductInput) (*models.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if in.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidInput)
	}
	if in.Stock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", ErrInvalidInput)
	}

	product := &models.Product{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur *imaging.Current
		if id != 0 {
			if err := tx.First(product, id).Error; err != nil {
				return notFound(err, "product", id)
			}
			cur = &imaging.Current{Ref: product.Image, Digest: product.ImageDigest}
		}

		var count int64
		if err := tx.Model(&models.Product{}).Where("name = ? AND id <> ?", in.Name, id).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &UniquenessError{Entity: "product", Name: in.Name}
		}

		folder := ""
		if in.CategoryID != nil {
			cat, err := getCategory(tx, *in.CategoryID)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			folder = s.slugify(cat.Name)
		}

		img, err := s.normalizer.Normalize(cur, in.Image, folder)
		if err != nil {
			return err
		}
		if in.ClearImage {
			img = imaging.Result{}
		}

		product.Name = in.Name
		product.Description = in.Description
		product.Price = in.Price.Round(2)
		product.CategoryID = in.CategoryID
		product.Category = nil
		product.Image = img.Ref
		product.ImageDigest = img.Digest
		product.Stock = uint(in.Stock)
		product.Featured = in.Featured
		if err := tx.Omit(clause.Associations).Save(product).Error; err != nil {
			return err
		}

		if in.AccessoryIDs != nil {
			return replaceAccessories(tx, product, in.AccessoryIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product saved", zap.Uint("id", product.ID), zap.String("name", product.Name), zap.String("image", product.Image))
	return product, nil
}

// SetAccessories replaces the accessory set of a product.
func (s *ProductService) SetAccessories(ctx context.Context, id uint, accessoryIDs []uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, id).Error; err != nil {
			return notFound(err, "product", id)
		}
		return replaceAccessories(tx, &product, accessoryIDs)
	})
}

// replaceAccessories rejects a product listing itself; the relation is
// directed, so the accessories do not gain the inverse link.
func replaceAccessories(tx *gorm.DB, product *models.Product, ids []uint) error {
	seen := make(map[uint]bool, len(ids))
	unique := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == product.ID {
			return fmt.Errorf("%w: product %q cannot be its own accessory", ErrInvalidInput, product.Name)
		}
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	assoc := tx.Model(product).Association("Accessories")
	if len(unique) == 0 {
		return assoc.Clear()
	}

	var accessories []*models.Product
	if err := tx.Where("id IN ?", unique).Order("id").Find(&accessories).Error; err != nil {
		return err
	}
	if len(accessories) != len(unique) {
		return fmt.Errorf("%w: unknown accessory id in %v", ErrInvalidInput, unique)
	}
	return assoc.Replace(accessories)
}

func (s *ProductService) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, id).Error; err != nil {
			return notFound(err, "product", id)
		}
		if err := tx.Model(&product).Association("Accessories").Clear(); err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM product_accessories WHERE accessory_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&product).Error
	})
}

// Get loads a product with its category and accessories.
func (s *ProductService) Get(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).
		Preload("Category").
		Preload("Accessories", func(db *gorm.DB) *gorm.DB { return db.Order("name") }).
		First(&product, id).Error
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// FindByName returns the product with exactly this name.
func (s *ProductService) FindByName(ctx context.Context, name string) (*models.Product, error) {
	var products []models.Product
	err := s.db.WithContext(ctx).Preload("Accessories").Where("name = ?", name).Limit(1).Find(&products).Error
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("product %q: %w", name, ErrNotFound)
	}
	return &products[0], nil
}
