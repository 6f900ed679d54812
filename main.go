package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NaturalHistoryMuseum/Pipe/config"
	"github.com/NaturalHistoryMuseum/Pipe/models"
	"github.com/NaturalHistoryMuseum/Pipe/providers"
	"github.com/NaturalHistoryMuseum/Pipe/providers/crossref"
	"github.com/NaturalHistoryMuseum/Pipe/providers/gmailapi"
	"github.com/NaturalHistoryMuseum/Pipe/providers/imapmail"
	"github.com/NaturalHistoryMuseum/Pipe/services"
)

var (
	stubsHarvestedCounter      prometheus.Counter
	citationsIdentifiedCounter prometheus.Counter
)

func init() {
	stubsHarvestedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stubs_harvested_total",
			Help: "Total number of citation stubs stored from alert emails.",
		},
	)
	citationsIdentifiedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citations_identified_total",
			Help: "Total number of canonical citations created or merged.",
		},
	)
	prometheus.MustRegister(stubsHarvestedCounter, citationsIdentifiedCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to citation database.")

	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.CitationStub{}, &models.Citation{}, &models.RunLog{})

	// Setup Mail-Provider
	var mailProviders []providers.MailProvider
	for _, name := range strings.Split(cfg.MailProvider, ",") {
		switch strings.TrimSpace(name) {
		case "gmail":
			retriever, err := gmailapi.NewRetriever(context.Background(), cfg, logging)
			if err != nil {
				logging.Fatal("Gmail retriever creation failed", zap.Error(err))
			}
			mailProviders = append(mailProviders, retriever)
		case "imap":
			mailProviders = append(mailProviders, imapmail.NewRetriever(cfg, logging))
		default:
			logging.Warn("Unknown mail provider in config", zap.String("provider_name", name))
		}
	}
	if len(mailProviders) == 0 {
		logging.Fatal("No valid mail providers enabled. Check MAIL_PROVIDER in .env")
	}

	// Setup Services
	harvest := services.NewHarvestService(cfg, db, logging, mailProviders)
	registry := crossref.NewFetcher(cfg, logging)
	identify := services.NewIdentifyService(cfg, db, logging, registry)
	pipeline := services.NewPipeline(db, logging, harvest, identify)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupStubRoutes(router, db, logging)
	setupCitationRoutes(router, db, logging)
	setupRunRoutes(router, db, logging)
	setupPipelineRoutes(router, pipeline, harvest, identify, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled pipeline job...")
		run, err := pipeline.RunOnce(context.Background())
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
			return
		}
		stubsHarvestedCounter.Add(float64(run.StubsStored))
		citationsIdentifiedCounter.Add(float64(run.CitationsNew + run.CitationsMerged))
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupStubRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/stubs")

	rg.GET("/", func(c *gin.Context) {
		var stubs []models.CitationStub
		if err := db.Order("id desc").Limit(500).Find(&stubs).Error; err != nil {
			log.Error("Database query for stubs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, stubs)
	})

	// Body-gesteuerter Endpunkt für gezielte Abfragen
	rg.POST("/query", func(c *gin.Context) {
		type StubQuery struct {
			EmailID  string `json:"email_id"`
			Label    string `json:"label"`
			IDStatus *bool  `json:"id_status"`
			Pending  *bool  `json:"pending"`
			Limit    int    `json:"limit"`
		}

		var req StubQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		query := db.Model(&models.CitationStub{})
		if req.EmailID != "" {
			query = query.Where("email_id = ?", req.EmailID)
		}
		if req.Label != "" {
			query = query.Where("label = ?", req.Label)
		}
		if req.IDStatus != nil {
			query = query.Where("id_status = ?", *req.IDStatus)
		}
		if req.Pending != nil && *req.Pending {
			query = query.Where("id_status = ? AND last_registry_run IS NULL", false)
		}
		if req.Limit > 0 {
			query = query.Limit(req.Limit)
		}

		var stubs []models.CitationStub
		if err := query.Order("id desc").Find(&stubs).Error; err != nil {
			log.Error("Database query for stubs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, stubs)
	})

	rg.GET("/:id", func(c *gin.Context) {
		var stub models.CitationStub
		if err := db.First(&stub, c.Param("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "stub not found"})
				return
			}
			log.Error("DB error fetching stub", zap.String("id", c.Param("id")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, stub)
	})
}

func setupCitationRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/citations")

	rg.GET("/", func(c *gin.Context) {
		var citations []models.Citation
		if err := db.Order("identified_date desc").Limit(500).Find(&citations).Error; err != nil {
			log.Error("Database query for citations failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, citations)
	})

	// DOIs enthalten Slashes, daher Wildcard-Parameter
	rg.GET("/doi/*doi", func(c *gin.Context) {
		doi := strings.TrimPrefix(c.Param("doi"), "/")
		var citation models.Citation
		if err := db.Where("doi = ?", doi).First(&citation).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "citation not found"})
				return
			}
			log.Error("DB error fetching citation", zap.String("doi", doi), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, citation)
	})
}

func setupRunRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/runs")

	rg.GET("/", func(c *gin.Context) {
		var runs []models.RunLog
		if err := db.Order("started_at desc").Limit(50).Find(&runs).Error; err != nil {
			log.Error("Database query for run log failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})
}

func setupPipelineRoutes(router *gin.Engine, pipeline *services.Pipeline, harvest *services.HarvestService, identify *services.IdentifyService, log *zap.Logger) {
	rg := router.Group("/pipeline")

	rg.POST("/run", func(c *gin.Context) {
		go func() {
			run, err := pipeline.RunOnce(context.Background())
			if err != nil {
				log.Error("Triggered pipeline run failed", zap.Error(err))
				return
			}
			stubsHarvestedCounter.Add(float64(run.StubsStored))
			citationsIdentifiedCounter.Add(float64(run.CitationsNew + run.CitationsMerged))
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Pipeline run started in background."})
	})

	rg.POST("/harvest", func(c *gin.Context) {
		go func() {
			ctx := context.Background()
			stubs, _ := harvest.Run(ctx)
			stored, _, err := harvest.Store(ctx, stubs)
			if err != nil {
				log.Error("Triggered harvest failed", zap.Error(err))
				return
			}
			stubsHarvestedCounter.Add(float64(len(stored)))
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Harvest started in background."})
	})

	rg.POST("/identify", func(c *gin.Context) {
		go func() {
			ctx := context.Background()
			pending, err := identify.PendingStubs(ctx)
			if err != nil {
				log.Error("Could not load pending stubs", zap.Error(err))
				return
			}
			result := identify.Identify(ctx, pending)
			if err := identify.Persist(ctx, result); err != nil {
				log.Error("Triggered identify failed", zap.Error(err))
				return
			}
			citationsIdentifiedCounter.Add(float64(result.NewCount + result.MergedCount))
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Identify run started in background."})
	})
}
