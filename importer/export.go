package importer

import (
	"context"
	"io"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/judyrop/catalog-backend/models"
)

// ExportProducts writes every product, ordered by name, in the import schema.
// Category and accessories are written by name so the file imports back.
func (im *Importer) ExportProducts(ctx context.Context, w io.Writer, format Format) error {
	var products []models.Product
	err := im.db.WithContext(ctx).
		Preload("Category").
		Preload("Accessories", func(db *gorm.DB) *gorm.DB { return db.Order("name") }).
		Order("name").Find(&products).Error
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(products))
	for _, p := range products {
		category := ""
		if p.Category != nil {
			category = p.Category.Name
		}
		names := make([]string, 0, len(p.Accessories))
		for _, a := range p.Accessories {
			names = append(names, a.Name)
		}
		rows = append(rows, []string{
			p.Name,
			p.Description,
			p.Price.StringFixed(2),
			category,
			p.Image,
			strconv.FormatUint(uint64(p.Stock), 10),
			strconv.FormatBool(p.Featured),
			strings.Join(names, ", "),
		})
	}
	return WriteTable(w, format, ProductHeader, rows)
}

func (im *Importer) ExportEmployees(ctx context.Context, w io.Writer, format Format) error {
	var employees []models.Employee
	if err := im.db.WithContext(ctx).Order("name").Find(&employees).Error; err != nil {
		return err
	}
	rows := make([][]string, 0, len(employees))
	for _, e := range employees {
		rows = append(rows, []string{
			e.Name,
			e.Role,
			e.Email,
			optional(e.Phone),
			e.StartTime.String(),
			formatDate(e.Birthday),
		})
	}
	return WriteTable(w, format, EmployeeHeader, rows)
}
