package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/judyrop/catalog-backend/catalog"
	"github.com/judyrop/catalog-backend/imaging"
	"github.com/judyrop/catalog-backend/importer"
	"github.com/judyrop/catalog-backend/models"
	"github.com/judyrop/catalog-backend/pkg/config"
	"github.com/judyrop/catalog-backend/pkg/database"
	"github.com/judyrop/catalog-backend/pkg/logger"
	"github.com/judyrop/catalog-backend/pkg/metrics"
)

// App holds the components the HTTP handlers are served from.
type App struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.Logger
	metrics  *metrics.Metrics
	storage  *imaging.Storage
	tree     *catalog.CategoryTree
	products *catalog.ProductService
	views    *catalog.Views
	importer *importer.Importer
	// verifier is nil when auth is not configured.
	verifier *oidc.IDTokenVerifier
}

func NewApp(cfg *config.Config, db *gorm.DB, zl *zap.Logger, m *metrics.Metrics) *App {
	storage := imaging.NewStorage(cfg.Storage.Root)
	normalizer := imaging.NewNormalizer(storage, imaging.Options{
		MaxWidth: cfg.Storage.MaxWidth,
		Quality:  cfg.Storage.Quality,
	}, zl.Named("imaging"), m)

	tree := catalog.NewCategoryTree(db, zl.Named("categories"), catalog.FolderHook(storage, catalog.Slugify))
	products := catalog.NewProductService(db, normalizer, catalog.Slugify, zl.Named("products"))
	resolver := catalog.NewResolver(db)
	settings := catalog.Settings{
		PageSize:               cfg.Catalog.PageSize,
		NoveltyCount:           cfg.Catalog.NoveltyCount,
		StockListCount:         cfg.Catalog.StockListCount,
		AutocompleteMinChars:   cfg.Catalog.AutocompleteMinChars,
		AutocompleteMaxResults: cfg.Catalog.AutocompleteMaxResults,
		PlaceholderImage:       cfg.Catalog.PlaceholderImage,
		MediaURL:               cfg.Storage.MediaURL,
		Currency:               cfg.Catalog.Currency,
		BaseURL:                cfg.Catalog.BaseURL,
		ContactWhatsApp:        cfg.Contact.WhatsApp,
	}

	return &App{
		cfg:      cfg,
		db:       db,
		log:      zl,
		metrics:  m,
		storage:  storage,
		tree:     tree,
		products: products,
		views:    catalog.NewViews(db, settings, tree, resolver, products),
		importer: importer.New(db, tree, products, storage, catalog.Slugify,
			importer.Options{CreateMissingCategories: cfg.Import.CreateMissingCategories},
			zl.Named("importer"), m),
	}
}

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	zl, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
	})
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer zl.Sync()

	db, err := database.Open(database.Config{
		Driver:        cfg.Database.Driver,
		DSN:           cfg.Database.DSN,
		MaxOpenConns:  cfg.Database.MaxOpenConns,
		MaxIdleConns:  cfg.Database.MaxIdleConns,
		LogLevel:      cfg.Database.LogLevel,
		SlowThreshold: cfg.Database.SlowThreshold,
	}, zl)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := models.Migrate(db); err != nil {
		zl.Fatal("failed to migrate database", zap.Error(err))
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	app := NewApp(cfg, db, zl, m)
	if err := app.storage.EnsureDir(""); err != nil {
		zl.Fatal("failed to create image storage", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Auth.Enabled() {
		if app.verifier, err = initOIDC(ctx, cfg.Auth); err != nil {
			zl.Fatal("failed to initialise OIDC provider", zap.String("issuer", cfg.Auth.Issuer), zap.Error(err))
		}
	} else {
		zl.Warn("auth is not configured, admin routes are open")
	}

	gin.SetMode(cfg.Server.GinMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           SetupRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zl.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown failed", zap.Error(err))
	}
}

func initOIDC(ctx context.Context, cfg config.AuthConfig) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, err
	}
	return provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), nil
}

// AuthMiddleware requires a bearer ID token accepted by verifier. A nil
// verifier lets every request through.
func AuthMiddleware(verifier *oidc.IDTokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		token, err := verifier.Verify(c.Request.Context(), strings.TrimPrefix(authHeader, prefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Set("admin_subject", token.Subject)
		c.Next()
	}
}
