package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func SetupRouter(app *App) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(app.log), Recovery(app.log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  app.cfg.CORS.AllowOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Disposition", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	if app.metrics != nil {
		r.Use(app.metrics.GinMiddleware())
		r.GET(app.cfg.Metrics.Path, gin.WrapH(app.metrics.Handler()))
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.Static(app.cfg.Storage.MediaURL, app.storage.Root())

	r.GET("/", app.home)
	r.GET("/catalog", app.listing)
	r.GET("/catalog/categories/:id", app.categoryDetail)
	r.GET("/products/:id", app.productDetail)
	r.GET("/search-suggestions", app.searchSuggestions)
	r.GET("/about", app.about)
	r.GET("/contact", app.contact)

	admin := r.Group("/admin", AuthMiddleware(app.verifier))
	{
		admin.POST("/categories", app.createCategory)
		admin.PUT("/categories/:id", app.updateCategory)
		admin.DELETE("/categories/:id", app.deleteCategory)

		admin.POST("/products", app.createProduct)
		admin.PUT("/products/:id", app.updateProduct)
		admin.DELETE("/products/:id", app.deleteProduct)
		admin.POST("/products/import", app.importProducts)
		admin.GET("/products/export", app.exportProducts)

		admin.POST("/employees/import", app.importEmployees)
		admin.GET("/employees/export", app.exportEmployees)
	}

	return r
}

const requestIDHeader = "X-Request-ID"

// RequestLogger tags each request with an id and logs one line when it
// completes.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

func Recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString("request_id")),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}
