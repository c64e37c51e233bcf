package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"parking_lifecycle/internal/api"
	"parking_lifecycle/internal/api/handler"
	"parking_lifecycle/internal/api/middleware"
	"parking_lifecycle/internal/clock"
	"parking_lifecycle/internal/config"
	"parking_lifecycle/internal/iot"
	"parking_lifecycle/internal/metrics"
	"parking_lifecycle/internal/notify"
	"parking_lifecycle/internal/obs"
	"parking_lifecycle/internal/repository"
	"parking_lifecycle/internal/repository/memory"
	"parking_lifecycle/internal/repository/postgresql"
	"parking_lifecycle/internal/repository/postgresql/migrations"
	"parking_lifecycle/internal/service"
	"syscall"
	"time"

	awsgo_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName     = "parking-lifecycle"
	serviceVersion  = "0.1.0"
	shutdownTimeout = 10 * time.Second
)

type store struct {
	spaces        repository.ParkingSpaceRepository
	notifications repository.NotificationRepository
	ping          func(ctx context.Context) error
	closer        io.Closer
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	if cfg.StoreBackend == config.BackendMemory {
		log.Println("Store: using in-memory backend, state is lost on restart.")
		return &store{
			spaces:        memory.NewParkingSpaceRepository(),
			notifications: memory.NewNotificationRepository(0),
		}, nil
	}

	db, err := postgresql.NewDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("Store: connected to postgres %s:%d/%s via %s driver.", cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBDriver)
	return &store{
		spaces:        postgresql.NewPgParkingSpaceRepository(db),
		notifications: postgresql.NewPgNotificationRepository(db),
		ping:          db.PingContext,
		closer:        db,
	}, nil
}

func main() {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Telemetry
	shutdownTracer, err := obs.InitTracer(ctx, serviceName, serviceVersion, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Could not initialise tracing: %v", err)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 3. Store
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Could not open store: %v", err)
	}

	// 4. Notification sinks
	g, gctx := errgroup.WithContext(ctx)
	var closers []io.Closer
	sinks := notify.MultiSink{notify.NewStoreSink(st.notifications), notify.LogSink{}}
	if cfg.RabbitURL != "" {
		amqpSink, err := notify.NewAMQPSink(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			log.Printf("WARNING: RabbitMQ unavailable, notifications are not published: %v", err)
		} else {
			queued := notify.NewQueuedSink("amqp", amqpSink, cfg.NotifyQueueSize)
			sinks = append(sinks, queued)
			closers = append(closers, amqpSink)
			g.Go(func() error { return queued.Run(gctx) })
			log.Printf("Notifications: publishing to exchange %s.", cfg.RabbitExchange)
		}
	}

	// 5. Lifecycle core
	zoneClasses, _ := cfg.ZoneClasses() // validated by config.Load
	wsManager := handler.NewWebSocketManager()
	lifecycle := service.NewSpaceLifecycleService(st.spaces,
		service.NewNotificationEmitter(sinks, m),
		clock.NewSystem(),
		service.WithReservationTTL(cfg.ReservationTTL(), cfg.MaxReservationTTL()),
		service.WithMetrics(m),
		service.WithObserver(wsManager),
		service.WithZoneLayout(service.ZoneLayout{SpacesPerZone: cfg.SpacesPerZone, Classes: zoneClasses}),
	)
	if cfg.ProvisionOnStart {
		if _, err := lifecycle.Provision(ctx, service.ProvisionInput{TotalSpaces: cfg.TotalSpaces}); err != nil {
			log.Printf("WARNING: provisioning on start failed: %v", err)
		}
	}
	if _, err := lifecycle.Summary(ctx); err != nil {
		log.Printf("WARNING: could not read initial space summary: %v", err)
	}
	scheduler := service.NewExpiryScheduler(lifecycle, clock.NewSystem(), m, cfg.SweepInterval(), cfg.SweepTimeout())

	g.Go(func() error { return wsManager.Start(gctx) })
	g.Go(func() error { return scheduler.Start(gctx) })

	// 6. Occupancy sensors
	if cfg.SQSOccupancyQueueURL == "" {
		log.Println("WARNING: SQS_OCCUPANCY_QUEUE_URL is not set, sensor consumer is disabled.")
	} else {
		awsSDKCfg, err := awsgo_config.LoadDefaultConfig(ctx, awsgo_config.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatalf("Could not load AWS SDK config: %v", err)
		}
		consumer := iot.NewSQSConsumer(sqs.NewFromConfig(awsSDKCfg), cfg.SQSOccupancyQueueURL, service.NewOccupancyService(lifecycle))
		g.Go(func() error { return consumer.Start(gctx) })
	}

	// 7. HTTP
	if cfg.JWTSecret == "" {
		log.Println("WARNING: JWT_SECRET is not set, every /api/v1 request is rejected.")
	}
	router := api.SetupRouter(api.Dependencies{
		Lifecycle:      lifecycle,
		Scheduler:      scheduler,
		Notifications:  st.notifications,
		Auth:           middleware.NewAuthMiddleware(cfg.JWTSecret),
		WebSockets:     wsManager,
		Health:         handler.NewHealthHandler(st.ping),
		Metrics:        m,
		TotalSpaces:    cfg.TotalSpaces,
		AllowedOrigins: cfg.AllowedOrigins(),
	})
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Printf("Server listening on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Stopped with error: %v", err)
	}

	// 8. Release resources after every worker has stopped
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Printf("Close: %v", err)
		}
	}
	if st.closer != nil {
		if err := st.closer.Close(); err != nil {
			log.Printf("Closing database: %v", err)
		}
	}
	tracerCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(tracerCtx); err != nil {
		log.Printf("Tracer shutdown: %v", err)
	}
	log.Println("Server stopped.")
}
