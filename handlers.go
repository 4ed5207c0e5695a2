package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/judyrop/catalog-backend/catalog"
	"github.com/judyrop/catalog-backend/imaging"
	"github.com/judyrop/catalog-backend/importer"
)

// respondError maps domain errors to status codes. Anything unrecognised is
// logged and reported as a bare 500.
func (a *App) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrUniqueness):
		status = http.StatusConflict
	case errors.Is(err, imaging.ErrImageDecode):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrInvalidInput),
		errors.Is(err, catalog.ErrCategoryCycle),
		errors.Is(err, catalog.ErrCategoryDepth),
		errors.Is(err, imaging.ErrInvalidRef),
		errors.Is(err, importer.ErrInvalidValue),
		errors.Is(err, importer.ErrUnsupportedFormat):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// idParam reads the :id path segment; a malformed id is a 404 like any
// other unknown id.
func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return 0, false
	}
	return uint(id), true
}

// ---------------------------- public ---------------------------- //

func (a *App) home(c *gin.Context) {
	groups, err := a.views.Home(c.Request.Context())
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"featured": groups})
}

func (a *App) listing(c *gin.Context) {
	listing, err := a.views.Listing(c.Request.Context(), c.Query("q"), c.Query("page"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (a *App) categoryDetail(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	page, err := a.views.CategoryDetail(c.Request.Context(), id, c.Query("q"), c.Query("page"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (a *App) productDetail(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	page, err := a.views.ProductDetail(c.Request.Context(), id)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (a *App) searchSuggestions(c *gin.Context) {
	suggestions, err := a.views.Suggestions(c.Request.Context(), c.Query("q"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestions)
}

func (a *App) about(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"page":             "about",
		"contact_whatsapp": a.views.Settings().ContactWhatsApp,
	})
}

func (a *App) contact(c *gin.Context) {
	number := a.views.Settings().ContactWhatsApp
	resp := gin.H{"page": "contact", "contact_whatsapp": number}
	if number != "" {
		resp["whatsapp_url"] = "https://wa.me/" + strings.TrimPrefix(number, "+")
	}
	c.JSON(http.StatusOK, resp)
}

// ---------------------------- admin ----------------------------- //

type categoryRequest struct {
	Name     string `json:"name" binding:"required"`
	ParentID *uint  `json:"parent_id"`
}

func (a *App) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	category, err := a.tree.Create(c.Request.Context(), req.Name, req.ParentID)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (a *App) updateCategory(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	category, err := a.tree.Update(c.Request.Context(), id, req.Name, req.ParentID)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (a *App) deleteCategory(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := a.tree.Delete(c.Request.Context(), id); err != nil {
		a.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// productForm is the multipart form of the product admin endpoints. The
// image file and accessory_ids are read separately.
type productForm struct {
	Name        string `form:"name" binding:"required"`
	Description string `form:"description"`
	Price       string `form:"price" binding:"required"`
	CategoryID  *uint  `form:"category_id"`
	Stock       int    `form:"stock"`
	Featured    bool   `form:"featured"`
	ClearImage  bool   `form:"clear_image"`
}

func (a *App) productInput(c *gin.Context) (catalog.ProductInput, error) {
	var form productForm
	if err := c.ShouldBind(&form); err != nil {
		return catalog.ProductInput{}, fmt.Errorf("%w: %v", catalog.ErrInvalidInput, err)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(form.Price))
	if err != nil {
		return catalog.ProductInput{}, fmt.Errorf("%w: price %q", catalog.ErrInvalidInput, form.Price)
	}
	if form.CategoryID != nil && *form.CategoryID == 0 {
		form.CategoryID = nil
	}
	in := catalog.ProductInput{
		Name:        form.Name,
		Description: form.Description,
		Price:       price,
		CategoryID:  form.CategoryID,
		Stock:       form.Stock,
		Featured:    form.Featured,
		ClearImage:  form.ClearImage,
	}

	if values, ok := c.GetPostFormArray("accessory_ids"); ok {
		in.AccessoryIDs = []uint{}
		for _, v := range values {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part == "" {
					continue
				}
				id, err := strconv.ParseUint(part, 10, 64)
				if err != nil {
					return catalog.ProductInput{}, fmt.Errorf("%w: accessory id %q", catalog.ErrInvalidInput, part)
				}
				in.AccessoryIDs = append(in.AccessoryIDs, uint(id))
			}
		}
	}

	fh, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		return catalog.ProductInput{}, err
	default:
		f, err := fh.Open()
		if err != nil {
			return catalog.ProductInput{}, err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return catalog.ProductInput{}, err
		}
		in.Image = imaging.Uploaded{Filename: fh.Filename, Data: data}
	}
	return in, nil
}

func (a *App) createProduct(c *gin.Context) {
	in, err := a.productInput(c)
	if err != nil {
		a.respondError(c, err)
		return
	}
	product, err := a.products.Create(c.Request.Context(), in)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (a *App) updateProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	in, err := a.productInput(c)
	if err != nil {
		a.respondError(c, err)
		return
	}
	product, err := a.products.Update(c.Request.Context(), id, in)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (a *App) deleteProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := a.products.Delete(c.Request.Context(), id); err != nil {
		a.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// upload opens the "file" form field and infers its format from the name
// unless ?format= is given.
func upload(c *gin.Context) (io.ReadCloser, importer.Format, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("%w: file: %v", importer.ErrInvalidValue, err)
	}
	name := c.DefaultQuery("format", fh.Filename)
	format, err := importer.ParseFormat(name)
	if err != nil {
		return nil, "", err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	return f, format, nil
}

func (a *App) importProducts(c *gin.Context) {
	f, format, err := upload(c)
	if err != nil {
		a.respondError(c, err)
		return
	}
	defer f.Close()
	report, err := a.importer.ImportProducts(c.Request.Context(), f, format)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a *App) importEmployees(c *gin.Context) {
	f, format, err := upload(c)
	if err != nil {
		a.respondError(c, err)
		return
	}
	defer f.Close()
	report, err := a.importer.ImportEmployees(c.Request.Context(), f, format)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a *App) exportProducts(c *gin.Context) {
	a.export(c, "productos", a.importer.ExportProducts)
}

func (a *App) exportEmployees(c *gin.Context) {
	a.export(c, "empleados", a.importer.ExportEmployees)
}

func (a *App) export(c *gin.Context, name string, write func(ctx context.Context, w io.Writer, f importer.Format) error) {
	format, err := importer.ParseFormat(c.DefaultQuery("format", "csv"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := write(c.Request.Context(), &buf, format); err != nil {
		a.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, name, format))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
