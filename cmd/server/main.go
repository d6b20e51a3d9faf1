package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"eda/internal/eventbus"
	"eda/internal/notify"
	"eda/internal/notify/channel"
	"eda/internal/platform/config"
	"eda/internal/platform/httpserver"
	"eda/internal/platform/kafka"
	"eda/internal/platform/kafka/consumer"
	"eda/internal/platform/logger"
	"eda/internal/platform/metrics"
	platformredis "eda/internal/platform/redis"
	httptransport "eda/internal/transport/http"
	userhandler "eda/internal/users/handler"
	"eda/internal/users/models"
	"eda/internal/users/service"
	"eda/internal/users/store"
)

const shutdownTimeout = 15 * time.Second

// recordStore is what the server needs from any store backend.
type recordStore interface {
	service.Store
	httptransport.HealthChecker
}

// eventBus is what the server needs from any bus backend.
type eventBus interface {
	service.Publisher
	httptransport.HealthChecker
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// run wires the pipeline for cfg and blocks until ctx is cancelled or a
// component fails.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(reg)
	busMetrics := eventbus.NewMetrics(reg)
	notifyMetrics := notify.NewMetrics(reg)

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	var redisClient *platformredis.Client
	if cfg.NeedsRedis() {
		rc, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		redisClient = rc
		cleanup = append(cleanup, func() { _ = rc.Close() })
	}

	var producer *kgo.Client
	if cfg.NeedsKafka() {
		p, err := kafka.NewProducer(cfg.Kafka, "eda-"+cfg.Stage)
		if err != nil {
			return err
		}
		producer = p
		cleanup = append(cleanup, p.Close)
		if err := kafka.EnsureTopics(ctx, p, cfg.Kafka, kafkaTopics(cfg)...); err != nil {
			return err
		}
	}

	st, err := buildStore(ctx, cfg, redisClient, &cleanup)
	if err != nil {
		return err
	}

	var sender notify.Sender
	switch cfg.NotifyBackend {
	case config.NotifyRedis:
		sender = channel.NewRedisSender(redisClient)
	case config.NotifyKafka:
		sender = channel.NewKafkaSender(producer)
	default:
		sender = channel.NewLogSender(log)
	}
	dispatcher := notify.NewDispatcher(sender, cfg.TopicARN,
		notify.WithLogger(log),
		notify.WithMetrics(notifyMetrics),
	)

	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}
	router, err := eventbus.NewRouter(rules,
		map[string]eventbus.Target{notify.TargetID: dispatcher},
		eventbus.WithDeliveryTimeout(cfg.DeliveryTimeout),
		eventbus.WithMetrics(busMetrics),
		eventbus.WithLogger(log),
	)
	if err != nil {
		return err
	}

	var (
		bus      eventBus
		loop     *consumer.Consumer
		closeBus func(context.Context) error
	)
	switch cfg.BusBackend {
	case config.BusKafka:
		bus = eventbus.NewKafkaBus(cfg.EventBusName, producer,
			eventbus.WithCircuitBreaker(eventbus.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)),
			eventbus.WithKafkaMetrics(busMetrics),
			eventbus.WithKafkaLogger(log),
		)
		client, err := kafka.NewConsumer(cfg.Kafka, "eda-"+cfg.Stage+"-consumer", cfg.EventBusName)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, client.Close)
		loop = consumer.New(client, eventbus.NewRecordHandler(router, log), log)
		closeBus = router.Wait
	default:
		local := eventbus.NewLocalBus(cfg.EventBusName, router, busMetrics)
		bus = local
		closeBus = local.Close
	}

	svc, err := service.New(st, bus, cfg.EventBusName,
		service.WithLogger(log),
		service.WithMetrics(appMetrics),
	)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Metrics:        appMetrics,
		Gatherer:       reg,
		RequestTimeout: cfg.RequestTimeout,
		Checks:         map[string]httptransport.HealthChecker{"store": st, "bus": bus},
		Routes:         []httptransport.Routes{userhandler.New(svc, log)},
	}), httpserver.WithRequestTimeout(cfg.RequestTimeout))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server",
			"addr", cfg.Addr,
			"stage", cfg.Stage,
			"store", cfg.StoreBackend,
			"bus", cfg.BusBackend,
			"notify", cfg.NotifyBackend,
		)
		return httpserver.ListenAndServe(srv)
	})
	if loop != nil {
		g.Go(func() error {
			return loop.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := closeBus(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain deliveries: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func buildStore(ctx context.Context, cfg config.Config, redisClient *platformredis.Client, cleanup *[]func()) (recordStore, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		*cleanup = append(*cleanup, func() { _ = db.Close() })
		ps := store.NewPostgres(db, cfg.TableName)
		if err := ps.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return ps, nil
	case config.StoreRedis:
		return store.NewRedis(redisClient.Client, cfg.TableName), nil
	default:
		return store.NewInMemoryStore(), nil
	}
}

// loadRules reads ROUTING_RULES_FILE, or routes user_created to the
// notification dispatcher when none is configured.
func loadRules(cfg config.Config) (*eventbus.RuleSet, error) {
	if cfg.RoutingRulesFile != "" {
		return eventbus.LoadRules(cfg.RoutingRulesFile)
	}
	return eventbus.NewRuleSet(eventbus.Rule{
		Name:        "user-created",
		Description: "notify on new users",
		Pattern: eventbus.Pattern{
			Source:     models.EventSource,
			DetailType: models.DetailTypeUserCreated,
		},
		Targets: []string{notify.TargetID},
	})
}

func kafkaTopics(cfg config.Config) []string {
	var topics []string
	if cfg.BusBackend == config.BusKafka {
		topics = append(topics, cfg.EventBusName)
	}
	if cfg.NotifyBackend == config.NotifyKafka {
		topics = append(topics, cfg.TopicARN)
	}
	return topics
}
