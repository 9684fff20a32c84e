package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JBD-GER/maklernull-sub000/internal/api/handlers"
	"github.com/JBD-GER/maklernull-sub000/internal/api/middleware"
	"github.com/JBD-GER/maklernull-sub000/internal/catalog"
	"github.com/JBD-GER/maklernull-sub000/internal/config"
	"github.com/JBD-GER/maklernull-sub000/internal/services"
)

// Services bundles what the public API handlers need.
type Services struct {
	Listings  services.IListingService
	Lifecycle services.ILifecycleService
	Checkout  services.ICheckoutService
	Catalog   catalog.ICatalog
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, svc Services) *gin.Engine {
	r := gin.Default()

	apiLimiter := middleware.NewRateLimiterMiddleware("api", cfg.RateLimitRefillRate, cfg.RateLimitBucketSize)
	webhookLimiter := middleware.NewRateLimiterMiddleware("webhook", cfg.RateLimitWebhookRefillRate, cfg.RateLimitWebhookBucketSize)

	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigin))

	restListingHandler := handlers.NewRestListingHandler(svc.Listings, svc.Lifecycle)
	restCheckoutHandler := handlers.NewRestCheckoutHandler(svc.Checkout, cfg.PaymentWebhookSecret)
	restPackageHandler := handlers.NewRestPackageHandler(svc.Catalog, cfg.AllowTestPackages)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Processor callbacks authenticate by signature, not by owner token.
		v1.POST("/payments/webhook", webhookLimiter.Limit(), restCheckoutHandler.PaymentWebhook)

		public := v1.Group("/", apiLimiter.Limit())
		{
			public.GET("/packages", restPackageHandler.ListPackages)
			public.GET("/packages/:code", restPackageHandler.GetPackage)
		}

		authRequired := v1.Group("/", apiLimiter.Limit(), middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/listings", restListingHandler.CreateListing)
			authRequired.GET("/listings", restListingHandler.ListListings)
			authRequired.GET("/listings/:id", restListingHandler.GetListing)
			authRequired.PUT("/listings/:id", restListingHandler.UpdateListing)
			authRequired.DELETE("/listings/:id", restListingHandler.DeleteListing)
			authRequired.GET("/listings/:id/readiness", restListingHandler.GetReadiness)
			authRequired.POST("/listings/:id/deactivate", restListingHandler.Deactivate)
			authRequired.POST("/listings/:id/marketed", restListingHandler.MarkMarketed)
			authRequired.POST("/listings/:id/archive", restListingHandler.Archive)
			authRequired.POST("/listings/:id/checkout", restCheckoutHandler.StartCheckout)
		}
	}

	return r
}

// SweepEnqueuer queues a sweep for the background workers.
type SweepEnqueuer interface {
	EnqueueSweep(ctx context.Context)
}

// SetupServiceRouter configures and returns the service Gin engine. It listens on the
// internal port only.
func SetupServiceRouter(expiry services.IExpiryService, sweeps SweepEnqueuer, cat catalog.ICatalog, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				log.Println("Shutdown signal sent successfully.")
			default:
				log.Println("Shutdown channel already signaled or blocked.")
			}
		case "sweep":
			var args struct {
				Queue bool `json:"queue"`
			}
			if len(req.Arguments) > 0 {
				if err := json.Unmarshal(req.Arguments, &args); err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected {\"queue\": bool}"})
					return
				}
			}
			if args.Queue {
				if sweeps == nil {
					c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Sweep queue not available in this run mode"})
					return
				}
				sweeps.EnqueueSweep(c.Request.Context())
				c.JSON(http.StatusOK, gin.H{"success": true, "result": "Sweep queued"})
				return
			}
			result, err := expiry.Sweep(c.Request.Context())
			if err != nil {
				log.Printf("Service API: sweep failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
		case "catalog":
			segments := map[string][]catalog.Package{}
			for _, segment := range []string{catalog.SegmentSale, catalog.SegmentRent, catalog.SegmentTest} {
				segments[segment] = cat.ListBySegment(segment)
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": gin.H{"version": cat.Version(), "packages": segments}})
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
