package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-inbox/adapters/gocommand"
	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/httpapi"
	"github.com/goliatone/go-inbox/providers/baileys"
	sqlstore "github.com/goliatone/go-inbox/store/sql"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var migrate bool
	var queue queueOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook and conversation HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, migrate, queue)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before serving")
	cmd.Flags().BoolVar(&queue.Enabled, "queue", false, "accept webhook batches onto an in-process job queue")
	cmd.Flags().IntVar(&queue.Workers, "queue-workers", 2, "workers draining the job queue")
	cmd.Flags().IntVar(&queue.Capacity, "queue-capacity", 256, "job queue capacity")
	return cmd
}

func runServe(ctx context.Context, migrate bool, queue queueOptions) error {
	provider := newLogProvider()
	logger := provider.GetLogger("inboxd")

	cfg, configProvider, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	client, err := sqlstore.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	if migrate {
		if err := client.Migrate(ctx); err != nil {
			return err
		}
	}

	cacheService, err := sqlstore.NewInboxCacheService(cfg)
	if err != nil {
		return err
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithInboxCache(cacheService))
	if err != nil {
		return err
	}

	opts := []core.Option{
		core.WithLoggerProvider(provider),
		core.WithConfigProvider(configProvider),
		core.WithStores(factory),
	}
	if cfg.Profile.Enabled {
		opts = append(opts, core.WithProfileFetcher(baileys.NewProfileClientFromConfig(cfg)))
	}
	service, err := core.NewService(cfg, opts...)
	if err != nil {
		return err
	}

	subs, err := gocommand.RegisterInbox(gocommand.NewRegistryAdapter(nil), service)
	if err != nil {
		return err
	}
	defer subs.Unsubscribe()

	pipeline := newWebhookPipeline(
		service.Config(),
		factory.InboxStore(),
		factory.WebhookDeliveryStore(),
		service,
		provider,
		queue,
	)
	server := httpapi.NewServer(
		service.Config().HTTP.Addr,
		provider.GetLogger("http"),
		httpapi.NewWebhookHandler(pipeline.Processor, provider.GetLogger("webhooks")),
		httpapi.NewConversationHandler(),
	)
	logger.Info("inboxd starting",
		"service", service.Config().ServiceName,
		"driver", cfg.Database.Driver,
		"queue", queue.Enabled,
	)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	workersDone := make(chan error, 1)
	go func() { workersDone <- pipeline.Run(workerCtx) }()

	serveErr := server.Run(ctx)
	cancelWorkers()
	if err := <-workersDone; err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}
