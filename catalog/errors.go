package catalog

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUniqueness    = errors.New("uniqueness violation")
	ErrCategoryCycle = errors.New("category cannot be placed under itself or a descendant")
	ErrCategoryDepth = errors.New("categories are limited to two levels")
	ErrInvalidInput  = errors.New("invalid input")
)

// UniquenessError names the entity and value that collided. For categories
// ParentID identifies the sibling scope (nil for top level).
type UniquenessError struct {
	Entity   string
	Name     string
	ParentID *uint
}

func (e *UniquenessError) Error() string {
	if e.Entity == "category" {
		if e.ParentID == nil {
			return fmt.Sprintf("a top-level category named %q already exists", e.Name)
		}
		return fmt.Sprintf("category %d already has a child named %q", *e.ParentID, e.Name)
	}
	return fmt.Sprintf("a %s named %q already exists", e.Entity, e.Name)
}

func (e *UniquenessError) Unwrap() error {
	return ErrUniqueness
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return err
}
