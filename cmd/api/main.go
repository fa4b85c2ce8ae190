// server/cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ku-fleet-api-server/config"
	"ku-fleet-api-server/internal/analytics"
	"ku-fleet-api-server/internal/api/handlers"
	"ku-fleet-api-server/internal/api/routes"
	"ku-fleet-api-server/internal/archive"
	"ku-fleet-api-server/internal/cache"
	"ku-fleet-api-server/internal/database"
	"ku-fleet-api-server/internal/jobs"
	"ku-fleet-api-server/internal/metrics"
	"ku-fleet-api-server/internal/notify"
	"ku-fleet-api-server/internal/retention"
	"ku-fleet-api-server/internal/safety"
	"ku-fleet-api-server/internal/socket"
	"ku-fleet-api-server/internal/store"
	"ku-fleet-api-server/internal/tracking"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func queueOptions(cfg config.JobsConfig) map[string]jobs.QueueOptions {
	opts := func(q config.QueueConfig) jobs.QueueOptions {
		return jobs.QueueOptions{
			Concurrency:     q.Concurrency,
			Attempts:        q.Attempts,
			Backoff:         q.Backoff,
			KeepCompleted:   q.KeepCompleted,
			KeepFailed:      q.KeepFailed,
			FailedThreshold: q.FailedThreshold,
		}
	}
	return map[string]jobs.QueueOptions{
		jobs.QueueTrip:      opts(cfg.Trip),
		jobs.QueueAnalytics: opts(cfg.Analytics),
		jobs.QueueCleanup:   opts(cfg.Cleanup),
	}
}

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig("./config")
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}
	gin.SetMode(cfg.Server.GinMode)
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Could not resolve timezone: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.HealthCheck{}

	// 2. MongoDB, or in-memory stores when it is unreachable
	var stores store.Stores
	client, db, err := database.Connect(ctx, cfg.Mongo)
	if err != nil {
		log.Printf("MongoDB unavailable (%v); running with in-memory stores", err)
		stores = store.NewMemoryStores(loc)
	} else {
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Printf("Error disconnecting from MongoDB: %v", err)
			}
		}()
		if err := database.EnsureIndexes(ctx, db); err != nil {
			log.Fatalf("Failed to create indexes: %v", err)
		}
		stores = store.NewMongoStores(db, loc)
		checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
	}
	if err := database.SeedFleet(ctx, stores.Vehicles); err != nil {
		log.Printf("Seeding demo fleet failed: %v", err)
	}

	// 3. Redis for the location cache and the job broker
	var (
		locCache cache.Cache
		broker   jobs.Broker
	)
	rdb, err := cache.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		log.Printf("Redis unavailable (%v); cache and queues are process-local", err)
		locCache = cache.NewMemoryCache(cfg.Tracking.LocationTTL)
		broker = jobs.NewMemoryBroker()
	} else {
		defer rdb.Close()
		locCache = cache.NewRedisCache(rdb, cfg.Tracking.LocationTTL)
		broker = jobs.NewRedisBroker(rdb)
	}
	checks["cache"] = locCache.Ping

	// 4. Metrics and event fan-out
	collector := metrics.NewCollector()
	hub := socket.NewHub()
	publishers := notify.Fanout{&notify.HubPublisher{Hub: hub, Positions: true}}
	if cfg.NATS.URL != "" {
		nc, err := notify.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, collector)
		if err != nil {
			log.Printf("NATS unavailable (%v); events go to WebSocket clients only", err)
		} else {
			defer nc.Close()
			publishers = append(publishers, nc)
		}
	}

	// 5. Job runner
	runner := jobs.NewRunner(broker, queueOptions(cfg.Jobs))
	runner.SetObserver(collector)

	// 6. Services
	svc := tracking.NewService(tracking.Deps{
		Vehicles:  stores.Vehicles,
		Trips:     stores.Trips,
		Alerts:    stores.Alerts,
		Feedback:  stores.Feedback,
		Cache:     locCache,
		Queue:     runner,
		Evaluator: safety.NewEvaluator(cfg.Tracking.OverspeedThreshold),
		Publisher: publishers,
		Metrics:   collector,
	})
	svc.RegisterHandlers(runner)

	sweeperDeps := retention.Deps{
		Trips:    stores.Trips,
		Alerts:   stores.Alerts,
		Feedback: stores.Feedback,
		Cache:    locCache,
		Metrics:  collector,
		Policy:   retention.PolicyFromConfig(cfg.Retention),
	}
	if cfg.S3.Bucket != "" {
		archiver, err := archive.NewS3Archiver(ctx, cfg.S3)
		if err != nil {
			log.Printf("S3 archive disabled: %v", err)
		} else {
			sweeperDeps.Archiver = archiver
		}
	}
	sweeper := retention.NewSweeper(sweeperDeps)
	sweeper.RegisterHandlers(runner)

	generator := analytics.NewGenerator(analytics.Deps{
		Vehicles: stores.Vehicles,
		Trips:    stores.Trips,
		Alerts:   stores.Alerts,
		Cache:    locCache,
		Queue:    runner,
		Location: loc,
	})
	generator.RegisterHandlers(runner)

	// 7. Background work: workers, health loop, schedules
	workCtx, cancelWork := context.WithCancel(context.Background())
	runner.Start(workCtx)
	go runner.RunHealthLoop(workCtx, cfg.Jobs.HealthInterval)

	scheduler := retention.NewScheduler(runner, loc)
	if err := scheduler.AddSweeps(cfg.Retention); err != nil {
		log.Fatalf("Invalid retention schedule: %v", err)
	}
	if err := scheduler.Add(cfg.Retention.AnalyticsSchedule, jobs.QueueAnalytics, analytics.JobDaily, analytics.DailyPayload{}); err != nil {
		log.Fatalf("Invalid analytics schedule: %v", err)
	}
	scheduler.Start()

	if cfg.JWT.Secret == "" {
		log.Println("WARNING: jwt.secret is empty, protected routes are open")
	}

	// 8. HTTP server
	router := routes.SetupRouter(routes.Deps{
		Config:       cfg,
		Location:     loc,
		Stores:       stores,
		Tracking:     svc,
		Runner:       runner,
		Sweeper:      sweeper,
		Analytics:    generator,
		Hub:          hub,
		Metrics:      collector.Handler(),
		WSGauge:      collector,
		HealthChecks: checks,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting API server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	<-scheduler.Stop().Done()

	// Workers finish the job in hand before returning.
	cancelWork()
	runner.Wait()
	log.Println("Server stopped")
}
