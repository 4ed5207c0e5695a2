package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Category is a node of the catalog tree. Names are unique among siblings,
// which the catalog package enforces since NULL parents defeat a plain
// composite index.
type Category struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"size:100;not null;index" json:"name"`
	ParentID  *uint      `gorm:"index" json:"parent_id"`
	Children  []Category `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE" json:"children,omitempty"`
	Products  []Product  `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsTopLevel reports whether the category has no parent.
func (c *Category) IsTopLevel() bool {
	return c.ParentID == nil
}

type Product struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:800;not null;uniqueIndex" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	CategoryID  *uint           `gorm:"index" json:"category_id"`
	Category    *Category       `json:"category,omitempty"`
	Image       string          `gorm:"size:255" json:"image"`
	ImageDigest string          `gorm:"size:64" json:"-"`
	Stock       uint            `gorm:"not null;default:0" json:"stock"`
	Featured    bool            `gorm:"not null;default:false" json:"featured"`
	Accessories []*Product      `gorm:"many2many:product_accessories;joinForeignKey:ProductID;joinReferences:AccessoryID" json:"accessories,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HasImage reports whether the product carries a stored image reference.
func (p *Product) HasImage() bool {
	return p.Image != ""
}

// InStock reports whether at least one unit is available.
func (p *Product) InStock() bool {
	return p.Stock > 0
}

type Employee struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:100;not null" json:"name"`
	Role      string         `gorm:"size:100;not null" json:"role"`
	Email     string         `gorm:"size:254;not null;uniqueIndex" json:"email"`
	Phone     *string        `gorm:"size:15" json:"phone"`
	StartTime datatypes.Time `json:"start_time"`
	Birthday  *time.Time     `gorm:"type:date" json:"birthday"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Migrate creates or updates the schema for every model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Category{}, &Product{}, &Employee{})
}
