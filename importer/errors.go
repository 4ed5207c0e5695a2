package importer

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAsset        = errors.New("referenced file does not exist")
	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrInvalidValue        = errors.New("invalid value")
)

// MissingAssetError reports an image cell whose file is absent from storage.
type MissingAssetError struct {
	Cell string
	Ref  string
}

func (e *MissingAssetError) Error() string {
	return fmt.Sprintf("image %q not found in storage (looked for %s)", e.Cell, e.Ref)
}

func (e *MissingAssetError) Unwrap() error {
	return ErrMissingAsset
}

// UnresolvedReferenceError reports a category or accessory name with no
// matching row.
type UnresolvedReferenceError struct {
	Kind string
	Name string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("%s %q does not exist", e.Kind, e.Name)
}

func (e *UnresolvedReferenceError) Unwrap() error {
	return ErrUnresolvedReference
}

func invalidValue(column, value string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: column %s: %q: %v", ErrInvalidValue, column, value, err)
	}
	return fmt.Errorf("%w: column %s: %q", ErrInvalidValue, column, value)
}
