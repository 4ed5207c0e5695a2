package catalog

import (
	"strconv"

	"github.com/judyrop/catalog-backend/models"
)

const (
	availabilityInStock    = "https://schema.org/InStock"
	availabilityOutOfStock = "https://schema.org/OutOfStock"
)

// StructuredProduct is the schema.org Product block embedded in detail pages.
type StructuredProduct struct {
	Context     string `json:"@context"`
	Type        string `json:"@type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SKU         string `json:"sku"`
	Image       string `json:"image,omitempty"`
	Offers      Offer  `json:"offers"`
}

type Offer struct {
	Type          string `json:"@type"`
	Price         string `json:"price"`
	PriceCurrency string `json:"priceCurrency"`
	Availability  string `json:"availability"`
	URL           string `json:"url,omitempty"`
}

func NewStructuredProduct(p *models.Product, s Settings) StructuredProduct {
	availability := availabilityOutOfStock
	if p.InStock() {
		availability = availabilityInStock
	}
	out := StructuredProduct{
		Context:     "https://schema.org/",
		Type:        "Product",
		Name:        p.Name,
		Description: p.Description,
		SKU:         strconv.FormatUint(uint64(p.ID), 10),
		Offers: Offer{
			Type:          "Offer",
			Price:         p.Price.StringFixed(2),
			PriceCurrency: s.Currency,
			Availability:  availability,
			URL:           s.Absolute(s.ProductURL(p.ID)),
		},
	}
	if p.HasImage() {
		out.Image = s.Absolute(s.ImageURL(p.Image))
	}
	return out
}
