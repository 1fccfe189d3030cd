// Package main starts the messaging service: the bus consumer, the
// scheduled-delivery loop, and a minimal health server, all running
// under one errgroup with signal-driven shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/caarlos0/env/v11"
	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/arxiv/messaging-service/bus/gcppubsub"
	"github.com/arxiv/messaging-service/delivery"
	"github.com/arxiv/messaging-service/delivery/email"
	"github.com/arxiv/messaging-service/delivery/webhook"
	"github.com/arxiv/messaging-service/flush"
	"github.com/arxiv/messaging-service/ingest"
	"github.com/arxiv/messaging-service/pkg/clock"
	"github.com/arxiv/messaging-service/pkg/logger"
	"github.com/arxiv/messaging-service/pkg/messaging"
	"github.com/arxiv/messaging-service/pkg/server"
	"github.com/arxiv/messaging-service/pkg/uuid"
	"github.com/arxiv/messaging-service/scheduler"
	mongostore "github.com/arxiv/messaging-service/store/mongo"
)

const svcName = "messaging"

// serviceMode selects which activities the process runs. api-only
// serves only the health endpoints; combined and pubsub-only both run
// the ingestion consumer and scheduler, since nothing else in this
// binary depends on the mode.
type serviceMode string

const (
	modeCombined   serviceMode = "combined"
	modePubSubOnly serviceMode = "pubsub-only"
	modeAPIOnly    serviceMode = "api-only"
)

type config struct {
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	GCPProjectID        string        `env:"GCP_PROJECT_ID,required"`
	SubscriptionID      string        `env:"PUBSUB_SUBSCRIPTION_ID" envDefault:"notifications"`
	MongoURI            string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase       string        `env:"MONGO_DATABASE" envDefault:"messaging"`
	SMTPHost            string        `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort            int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername        string        `env:"SMTP_USERNAME" envDefault:""`
	SMTPPassword        string        `env:"SMTP_PASSWORD" envDefault:""`
	SMTPSSLMode         string        `env:"SMTP_SSL_MODE" envDefault:"starttls"`
	DefaultSender       string        `env:"DEFAULT_SENDER" envDefault:"arXiv Messaging System"`
	APIPort             string        `env:"API_PORT" envDefault:"8080"`
	ServiceMode         serviceMode   `env:"SERVICE_MODE" envDefault:"combined"`
	StartupProbeTimeout time.Duration `env:"STARTUP_PROBE_TIMEOUT" envDefault:"30s"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load %s configuration: %s", svcName, err)
	}

	log, err := logger.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %s\n", err)
		os.Exit(1)
	}

	var exitCode int
	defer logger.ExitWithError(&exitCode)

	mongoClient, err := connectMongo(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to mongo", "error", err)
		exitCode = 1
		return
	}
	defer mongoClient.Disconnect(context.Background())

	st := mongostore.New(mongoClient.Database(cfg.MongoDatabase))

	var bus messaging.PubSub
	if cfg.ServiceMode != modeAPIOnly {
		bus, err = connectPubSub(ctx, cfg, log)
		if err != nil {
			log.Error("failed to connect to pub/sub", "error", err)
			exitCode = 1
			return
		}
		defer bus.Close()
	}

	emailProvider := email.New(email.Config{
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPort,
		Username:      cfg.SMTPUsername,
		Password:      cfg.SMTPPassword,
		TLSMode:       email.TLSMode(cfg.SMTPSSLMode),
		DefaultSender: cfg.DefaultSender,
	}, log)
	webhookProvider := webhook.New(log)
	deliverySvc := delivery.NewService(log, emailProvider, webhookProvider)

	ids := uuid.New()

	if cfg.ServiceMode != modeAPIOnly {
		processor := ingest.New(st, deliverySvc, ids, log)
		schedulerSvc := scheduler.New(st, deliverySvc, ids, clock.Real{}, log)
		// flush.Service is constructed here so an administrative
		// adapter (out of scope for this core) can be wired to it;
		// the core itself never calls Flush on a schedule.
		_ = flush.New(st, deliverySvc, ids, log)

		g.Go(func() error {
			return schedulerSvc.Run(ctx)
		})

		g.Go(func() error {
			return bus.Subscribe(ctx, messaging.SubscriberConfig{
				ID:          cfg.SubscriptionID,
				Topic:       cfg.SubscriptionID,
				Handler:     processor,
				MaxInFlight: 100,
			})
		})
	}

	srv := server.New(server.Config{Host: "", Port: cfg.APIPort}, func() bool { return true })
	g.Go(func() error {
		log.Info("health server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return stopSignalHandler(ctx, cancel, log)
	})

	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(srv)
	})

	if err := g.Wait(); err != nil {
		log.Error(fmt.Sprintf("%s terminated", svcName), "error", err)
	}
}

// connectMongo dials MongoDB, retrying with exponential backoff for up
// to cfg.StartupProbeTimeout so a slow dependency at boot doesn't
// crash-loop the process.
func connectMongo(ctx context.Context, cfg config, log *logger.Logger) (*mongo.Client, error) {
	var client *mongo.Client
	probe := func() error {
		c, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return err
		}
		if err := c.Ping(ctx, nil); err != nil {
			return err
		}
		client = c
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.StartupProbeTimeout
	notify := func(err error, next time.Duration) {
		log.Warn("mongo not ready, retrying", "error", err, "next_attempt_in", next)
	}
	if err := backoff.RetryNotify(probe, bo, notify); err != nil {
		return nil, err
	}
	return client, nil
}

// connectPubSub dials GCP Pub/Sub with the same bounded-retry probe
// connectMongo uses.
func connectPubSub(ctx context.Context, cfg config, log *logger.Logger) (messaging.PubSub, error) {
	var client *pubsub.Client
	probe := func() error {
		c, err := pubsub.NewClient(ctx, cfg.GCPProjectID)
		if err != nil {
			return err
		}
		client = c
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.StartupProbeTimeout
	notify := func(err error, next time.Duration) {
		log.Warn("pub/sub not ready, retrying", "error", err, "next_attempt_in", next)
	}
	if err := backoff.RetryNotify(probe, bo, notify); err != nil {
		return nil, err
	}
	return gcppubsub.New(client, log), nil
}

func stopSignalHandler(ctx context.Context, cancel context.CancelFunc, log *logger.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-c:
		defer cancel()
		log.Info(fmt.Sprintf("%s service shutdown by signal", svcName), "signal", sig)
		return nil
	case <-ctx.Done():
		return nil
	}
}
