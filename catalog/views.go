package catalog

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/judyrop/catalog-backend/models"
)

// Page is one page of a paginated listing. Out-of-range page numbers are
// clamped rather than rejected.
type Page[T any] struct {
	Items       []T   `json:"items"`
	Number      int   `json:"number"`
	NumPages    int   `json:"num_pages"`
	PageSize    int   `json:"page_size"`
	Total       int64 `json:"total"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// ProductCard is the listing representation of a product.
type ProductCard struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Stock      uint   `json:"stock"`
	Featured   bool   `json:"featured"`
	CategoryID *uint  `json:"category_id"`
	URL        string `json:"url"`
	ImageURL   string `json:"image_url"`
}

type CategoryCard struct {
	ID       uint         `json:"id"`
	Name     string       `json:"name"`
	URL      string       `json:"url"`
	Cover    *ProductCard `json:"cover"`
	ImageURL string       `json:"image_url"`
}

type FeaturedGroup struct {
	Category CategoryCard  `json:"category"`
	Products []ProductCard `json:"products"`
}

type Overview struct {
	Categories []CategoryCard `json:"categories"`
	InStock    []ProductCard  `json:"in_stock"`
}

type Listing struct {
	IsSearch bool               `json:"is_search_results"`
	Query    string             `json:"query,omitempty"`
	Results  *Page[ProductCard] `json:"results,omitempty"`
	Overview *Overview          `json:"overview,omitempty"`
}

type CategoryPage struct {
	Category   CategoryCard      `json:"category"`
	Path       string            `json:"path"`
	Breadcrumb []CategoryCard    `json:"breadcrumb"`
	Children   []CategoryCard    `json:"children"`
	Query      string            `json:"query,omitempty"`
	Products   Page[ProductCard] `json:"products"`
}

type ProductPage struct {
	Product        *models.Product   `json:"product"`
	ImageURL       string            `json:"image_url"`
	Breadcrumb     []CategoryCard    `json:"breadcrumb"`
	Accessories    []ProductCard     `json:"accessories"`
	AccessoryOf    []ProductCard     `json:"accessory_of"`
	StructuredData StructuredProduct `json:"structured_data"`
}

type Suggestion struct {
	Label    string `json:"label"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url"`
}

// Views builds the read models of the public pages.
type Views struct {
	db       *gorm.DB
	settings Settings
	tree     *CategoryTree
	resolver *Resolver
	products *ProductService
}

func NewViews(db *gorm.DB, settings Settings, tree *CategoryTree, resolver *Resolver, products *ProductService) *Views {
	return &Views{db: db, settings: settings, tree: tree, resolver: resolver, products: products}
}

func (v *Views) Settings() Settings {
	return v.settings
}

// Home groups featured products by category name, at most NoveltyCount per
// category.
func (v *Views) Home(ctx context.Context) ([]FeaturedGroup, error) {
	var featured []models.Product
	err := v.db.WithContext(ctx).Preload("Category").
		Where("featured = ? AND category_id IS NOT NULL", true).
		Order("id").Find(&featured).Error
	if err != nil {
		return nil, err
	}
	categoryName := func(p *models.Product) string {
		if p.Category == nil {
			return ""
		}
		return p.Category.Name
	}
	sort.SliceStable(featured, func(i, j int) bool {
		return categoryName(&featured[i]) < categoryName(&featured[j])
	})

	groups := []FeaturedGroup{}
	index := map[uint]int{}
	for i := range featured {
		p := &featured[i]
		if p.Category == nil {
			continue
		}
		gi, ok := index[p.Category.ID]
		if !ok {
			gi = len(groups)
			index[p.Category.ID] = gi
			groups = append(groups, FeaturedGroup{Category: v.categoryCard(p.Category, nil)})
		}
		if len(groups[gi].Products) < v.settings.NoveltyCount {
			groups[gi].Products = append(groups[gi].Products, v.card(p))
		}
	}
	return groups, nil
}

// Listing serves the catalog page: search results when query is set,
// otherwise the category overview.
func (v *Views) Listing(ctx context.Context, query, page string) (*Listing, error) {
	query = strings.TrimSpace(query)
	if query != "" {
		results, err := v.Search(ctx, query, page)
		if err != nil {
			return nil, err
		}
		return &Listing{IsSearch: true, Query: query, Results: results}, nil
	}
	overview, err := v.Overview(ctx)
	if err != nil {
		return nil, err
	}
	return &Listing{Overview: overview}, nil
}

// Overview lists the top-level categories with their covers and the most
// recently added products in stock.
func (v *Views) Overview(ctx context.Context) (*Overview, error) {
	cats, err := v.tree.TopLevel(ctx)
	if err != nil {
		return nil, err
	}
	covers, err := v.resolver.CoverImages(ctx)
	if err != nil {
		return nil, err
	}
	out := &Overview{Categories: make([]CategoryCard, 0, len(cats)), InStock: []ProductCard{}}
	for i := range cats {
		out.Categories = append(out.Categories, v.categoryCard(&cats[i], covers[cats[i].ID]))
	}

	var inStock []models.Product
	if err := v.db.WithContext(ctx).Where("stock > 0").Order("id DESC").
		Limit(v.settings.StockListCount).Find(&inStock).Error; err != nil {
		return nil, err
	}
	for i := range inStock {
		out.InStock = append(out.InStock, v.card(&inStock[i]))
	}
	return out, nil
}

// Search matches product names case-insensitively, ordered by name.
func (v *Views) Search(ctx context.Context, query, page string) (*Page[ProductCard], error) {
	return v.productPage(ctx, page, func(db *gorm.DB) *gorm.DB {
		return nameContains(db, query)
	})
}

func (v *Views) CategoryDetail(ctx context.Context, id uint, query, page string) (*CategoryPage, error) {
	cat, err := v.tree.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	chain, err := v.tree.Ancestry(ctx, cat)
	if err != nil {
		return nil, err
	}
	children, err := v.tree.Children(ctx, id)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	products, err := v.productPage(ctx, page, func(db *gorm.DB) *gorm.DB {
		db = db.Where("category_id = ?", id)
		if query != "" {
			db = nameContains(db, query)
		}
		return db
	})
	if err != nil {
		return nil, err
	}

	out := &CategoryPage{
		Category:   v.categoryCard(cat, nil),
		Breadcrumb: make([]CategoryCard, 0, len(chain)),
		Children:   make([]CategoryCard, 0, len(children)),
		Query:      query,
		Products:   *products,
	}
	names := make([]string, 0, len(chain))
	for i := range chain {
		out.Breadcrumb = append(out.Breadcrumb, v.categoryCard(&chain[i], nil))
		names = append(names, chain[i].Name)
	}
	out.Path = strings.Join(names, " > ")
	for i := range children {
		out.Children = append(out.Children, v.categoryCard(&children[i], nil))
	}
	return out, nil
}

// ProductDetail loads the product with both directions of the accessory
// relation and its structured data block.
func (v *Views) ProductDetail(ctx context.Context, id uint) (*ProductPage, error) {
	p, err := v.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var parents []models.Product
	err = v.db.WithContext(ctx).
		Where("id IN (?)", v.db.Table("product_accessories").Select("product_id").Where("accessory_id = ?", id)).
		Order("name").Find(&parents).Error
	if err != nil {
		return nil, err
	}

	out := &ProductPage{
		Product:        p,
		ImageURL:       v.settings.ImageURL(p.Image),
		Breadcrumb:     []CategoryCard{},
		Accessories:    make([]ProductCard, 0, len(p.Accessories)),
		AccessoryOf:    make([]ProductCard, 0, len(parents)),
		StructuredData: NewStructuredProduct(p, v.settings),
	}
	if p.Category != nil {
		chain, err := v.tree.Ancestry(ctx, p.Category)
		if err != nil {
			return nil, err
		}
		for i := range chain {
			out.Breadcrumb = append(out.Breadcrumb, v.categoryCard(&chain[i], nil))
		}
	}
	for _, a := range p.Accessories {
		out.Accessories = append(out.Accessories, v.card(a))
	}
	for i := range parents {
		out.AccessoryOf = append(out.AccessoryOf, v.card(&parents[i]))
	}
	return out, nil
}

// Suggestions returns autocomplete entries for query; queries shorter than
// AutocompleteMinChars yield an empty list.
func (v *Views) Suggestions(ctx context.Context, query string) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	out := []Suggestion{}
	if utf8.RuneCountInString(query) < v.settings.AutocompleteMinChars {
		return out, nil
	}
	var products []models.Product
	err := nameContains(v.db.WithContext(ctx), query).Order("name").
		Limit(v.settings.AutocompleteMaxResults).Find(&products).Error
	if err != nil {
		return nil, err
	}
	for i := range products {
		out = append(out, Suggestion{
			Label:    products[i].Name,
			URL:      v.settings.ProductURL(products[i].ID),
			ImageURL: v.settings.ImageURL(products[i].Image),
		})
	}
	return out, nil
}

func (v *Views) productPage(ctx context.Context, raw string, filter func(*gorm.DB) *gorm.DB) (*Page[ProductCard], error) {
	size := v.settings.PageSize
	base := func() *gorm.DB {
		return filter(v.db.WithContext(ctx).Model(&models.Product{}))
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}
	page := newPage[ProductCard](raw, total, size)

	var products []models.Product
	if err := base().Order("name").Order("id").
		Offset((page.Number - 1) * size).Limit(size).Find(&products).Error; err != nil {
		return nil, err
	}
	page.Items = make([]ProductCard, 0, len(products))
	for i := range products {
		page.Items = append(page.Items, v.card(&products[i]))
	}
	return page, nil
}

func newPage[T any](raw string, total int64, size int) *Page[T] {
	numPages := 1
	if total > 0 {
		numPages = int((total + int64(size) - 1) / int64(size))
	}
	number, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || number < 1 {
		number = 1
	}
	if number > numPages {
		number = numPages
	}
	return &Page[T]{
		Number:      number,
		NumPages:    numPages,
		PageSize:    size,
		Total:       total,
		HasNext:     number < numPages,
		HasPrevious: number > 1,
	}
}

func nameContains(db *gorm.DB, query string) *gorm.DB {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(query))
	return db.Where(`LOWER(name) LIKE ? ESCAPE '\'`, "%"+escaped+"%")
}

func (v *Views) card(p *models.Product) ProductCard {
	return ProductCard{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price.StringFixed(2),
		Stock:      p.Stock,
		Featured:   p.Featured,
		CategoryID: p.CategoryID,
		URL:        v.settings.ProductURL(p.ID),
		ImageURL:   v.settings.ImageURL(p.Image),
	}
}

func (v *Views) categoryCard(c *models.Category, cover *models.Product) CategoryCard {
	card := CategoryCard{
		ID:       c.ID,
		Name:     c.Name,
		URL:      v.settings.CategoryURL(c.ID),
		ImageURL: v.settings.ImageURL(""),
	}
	if cover != nil {
		pc := v.card(cover)
		card.Cover = &pc
		card.ImageURL = pc.ImageURL
	}
	return card
}
