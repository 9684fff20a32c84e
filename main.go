package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/JBD-GER/maklernull-sub000/internal/api"
	"github.com/JBD-GER/maklernull-sub000/internal/cache"
	"github.com/JBD-GER/maklernull-sub000/internal/catalog"
	"github.com/JBD-GER/maklernull-sub000/internal/config"
	"github.com/JBD-GER/maklernull-sub000/internal/db"
	"github.com/JBD-GER/maklernull-sub000/internal/email"
	"github.com/JBD-GER/maklernull-sub000/internal/events"
	"github.com/JBD-GER/maklernull-sub000/internal/logging"
	"github.com/JBD-GER/maklernull-sub000/internal/payment"
	"github.com/JBD-GER/maklernull-sub000/internal/scheduler"
	"github.com/JBD-GER/maklernull-sub000/internal/services"
	"github.com/JBD-GER/maklernull-sub000/internal/storage"
	"github.com/JBD-GER/maklernull-sub000/internal/store"
	"github.com/JBD-GER/maklernull-sub000/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks and sweep schedule), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.LogFile != "" {
		logWriter, err := logging.Setup(cfg.LogFile)
		if err != nil {
			log.Fatalf("Failed to open log file %s: %v", cfg.LogFile, err)
		}
		defer logWriter.Close()
	}

	// Initialize Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(indexCtx, mongoDb, store.Indexes()); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}
	cancelIndex()

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Package catalog
	var packageCatalog catalog.ICatalog
	if cfg.CatalogFile != "" {
		packageCatalog, err = catalog.Load(cfg.CatalogFile)
	} else {
		packageCatalog, err = catalog.Default()
	}
	if err != nil {
		log.Fatalf("Failed to load package catalog: %v", err)
	}
	log.Printf("Package catalog version %s loaded", packageCatalog.Version())

	// Payment processor and session archive
	var processor payment.IProcessor
	if cfg.MockServices {
		log.Println("MOCK_SERVICES enabled: Using logging payment processor.")
		processor = payment.NewLoggingProcessor(cfg.CheckoutSuccessURL)
	} else {
		processor = payment.NewHTTPProcessor(cfg.PaymentAPIURL, cfg.PaymentAPIKey, cfg.PaymentTimeout)
	}

	var archive storage.IArchiveStorage
	if cfg.AwsS3Bucket != "" {
		archive, err = storage.NewS3Storage(context.Background(), cfg)
		if err != nil {
			log.Fatalf("Failed to initialize S3 storage: %v", err)
		}
	} else {
		log.Println("No AWS_S3_BUCKET configured: checkout sessions are archived to the log only.")
		archive = storage.NewLoggingStorage()
	}

	// Owner notices
	var mailer email.Sender
	if cfg.MockServices {
		log.Println("MOCK_SERVICES enabled: Owner notices are stored in Redis.")
		mailer = email.NewRedisSender(redisClient, cfg.SmtpFromAddress)
	} else {
		mailer = email.NewSMTPSender(cfg)
	}
	if cfg.EmailLogFile != "" {
		fileSender, err := email.NewFileEmailSender(cfg.EmailLogFile)
		if err != nil {
			log.Fatalf("Failed to initialize email log file: %v", err)
		}
		mailer = email.NewCompositeEmailSender(mailer, fileSender)
	}

	// Initialize Task Client
	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()

	// Stores and services
	listingStore := store.NewListingStore(mongoDb)
	sessionStore := store.NewCheckoutSessionStore(mongoDb)
	preferenceStore := store.NewPreferenceStore(mongoDb)

	bus := events.NewBus(cfg, redisClient, taskClient)
	lifecycleService := services.NewLifecycleService(listingStore, sessionStore, bus, cache.NewReadinessCache(redisClient))
	listingService := services.NewListingService(cfg, listingStore, lifecycleService, bus)
	checkoutService := services.NewCheckoutService(cfg, packageCatalog, listingStore, sessionStore, lifecycleService, processor, bus)
	expiryService := services.NewExpiryService(cfg, listingStore, sessionStore, preferenceStore, lifecycleService, checkoutService, cache.NewLease(redisClient))

	sweepScheduler := scheduler.New(cfg.SweepCron, cfg.SweepLeaseTTL, taskClient)

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1)

	// Cancels the event listener and the scheduler on shutdown
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	// Start Service API (always runs)
	serviceRouter := api.SetupServiceRouter(expiryService, sweepScheduler, packageCatalog, shutdownChan)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: serviceRouter,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fmt.Printf("Service API listening on :%s\n", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		fmt.Println("Service API server stopped.")
	}()

	// --- Mode-specific servers ---
	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server
	schedulerStarted := false

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	apiMode := func() {
		fmt.Println("Starting main API server...")
		mainApiRouter := api.SetupRouter(cfg, api.Services{
			Listings:  listingService,
			Lifecycle: lifecycleService,
			Checkout:  checkoutService,
			Catalog:   packageCatalog,
		})
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Main API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			fmt.Println("Main API server stopped.")
		}()

		// Keep cached readiness reports in step with content writes from any instance.
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler := events.RefreshReadinessOnChange(lifecycleService.RefreshReadiness)
			if err := events.Subscribe(bgCtx, redisClient, handler); err != nil {
				log.Printf("ERROR: listing event listener: %v", err)
			}
		}()
	}

	bgMode := func() {
		fmt.Println("Starting background worker...")
		taskProcessor := tasks.NewTaskProcessor(cfg, expiryService, sessionStore, archive, mailer)
		var mux *asynq.ServeMux
		backgroundTaskSrv, mux = tasks.SetupServer(redisClient, taskProcessor)
		if err := backgroundTaskSrv.Start(mux); err != nil {
			log.Fatalf("Background task server error: %v", err)
		}
		fmt.Println("Background task server started.")

		if err := sweepScheduler.Start(bgCtx); err != nil {
			log.Fatalf("Failed to start sweep scheduler: %v", err)
		}
		schedulerStarted = true
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)
	case <-shutdownChan:
		fmt.Println("\nShutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if schedulerStarted {
		fmt.Println("Stopping sweep scheduler...")
		sweepScheduler.Stop()
	}
	cancelBg()

	fmt.Println("Shutting down Service API server...")
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}

	if mainApiSrv != nil {
		fmt.Println("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}

	if backgroundTaskSrv != nil {
		fmt.Println("Shutting down Background Task server...")
		backgroundTaskSrv.Shutdown()
	}

	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
