package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/openjobspec/ojs-job-chief/internal/api"
	"github.com/openjobspec/ojs-job-chief/internal/core"
	"github.com/openjobspec/ojs-job-chief/internal/history"
	"github.com/openjobspec/ojs-job-chief/internal/k8s"
	"github.com/openjobspec/ojs-job-chief/internal/manager"
	"github.com/openjobspec/ojs-job-chief/internal/metrics"
	natsbackend "github.com/openjobspec/ojs-job-chief/internal/nats"
	"github.com/openjobspec/ojs-job-chief/internal/scheduler"
	"github.com/openjobspec/ojs-job-chief/internal/server"
)

// healthService is the gRPC health service name reported while serving.
const healthService = "jobchief.v1.JobChief"

func newServeCmd() *cobra.Command {
	var queuesFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job-chief control loop and status server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.LoadConfig()
			if queuesFile != "" {
				cfg.QueuesFile = queuesFile
			}
			if cmd.Flags().Changed("nats-url") {
				cfg.NatsURL = flagNatsURL
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&queuesFile, "queues", "q", "", "Queue configuration file (default $JOB_CHIEF_QUEUES_FILE)")
	return cmd
}

func serve(ctx context.Context, cfg server.Config) error {
	queues, err := server.LoadQueueConfigs(cfg.QueuesFile)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(queues))
	for _, q := range queues {
		names = append(names, q.QueueName)
	}
	logger.Info("loaded queue config", "file", cfg.QueuesFile, "queues", names)

	backend, err := natsbackend.New(cfg.NatsURL)
	if err != nil {
		return err
	}
	defer backend.Close()
	logger.Info("connected to NATS", "url", cfg.NatsURL)

	metrics.Init(core.Version, "nats")

	client, err := k8s.NewKubeClient(cfg.Kubeconfig)
	if err != nil {
		return fmt.Errorf("kubernetes client: %w", err)
	}
	labels := k8s.InstanceLabels(cfg.InstanceUID, cfg.Environment)

	informerStop := make(chan struct{})
	informers := k8s.NewJobInformers(client, cfg.KubeNamespace, labels, cfg.InformerResync)
	defer func() {
		close(informerStop)
		informers.Shutdown()
	}()
	if !informers.Start(informerStop) {
		return errors.New("job informer cache did not sync")
	}

	jobs := k8s.NewJobFactory(client, informers.Jobs(), k8s.NewPodWatcherFactory(client, cfg.InformerResync), k8s.ManifestOptions{
		InstanceUID:      cfg.InstanceUID,
		Namespace:        cfg.KubeNamespace,
		PullSecret:       cfg.PullSecret,
		Labels:           labels,
		BackendURL:       cfg.NatsURL,
		BackendTLSSecret: cfg.NatsTLSSecret,
	}, logger)
	newWorkload := func(qc *core.QueueJobConfig) (manager.Workload, error) {
		job, err := jobs.NewJob(qc)
		if err != nil {
			return nil, err
		}
		return job, nil
	}

	provider := natsbackend.NewQueueProvider(backend.Consumers(), backend.Stats(), names, cfg.MonitorStateInterval, logger)
	if err := provider.StartQueue(ctx); err != nil {
		return fmt.Errorf("start queue provider: %w", err)
	}
	defer func() {
		if err := provider.StopQueue(); err != nil {
			logger.Warn("queue provider stop", "error", err)
		}
	}()

	broker := natsbackend.NewPubSubBroker(backend.Conn(), logger)
	defer broker.Close()

	observers := []manager.RunObserver{metrics.Recorder{}, broker}
	cleaners := scheduler.Cleaners{k8s.NewCleaner(client, cfg.KubeNamespace, labels, cfg.MaxJobAge, logger)}

	var runs api.HistorySource
	if cfg.HistoryDBPath != "" {
		store, err := history.Open(ctx, cfg.HistoryDBPath, logger)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer store.Close()
		observers = append(observers, store)
		cleaners = append(cleaners, &history.Pruner{Store: store, MaxAge: cfg.HistoryMaxAge})
		runs = store
	}

	sched := scheduler.New(backend.Triggers(), cfg.TriggerPollInterval, logger)
	mgr := manager.New(queues, sched, manager.NewRunFactory(provider, sched, newWorkload, logger, observers...), logger)

	collector := metrics.NewCollector(provider, mgr, names)
	if err := prometheus.Register(collector); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	defer prometheus.Unregister(collector)

	reaper, err := scheduler.NewReaper(cleaners, cfg.CleanupInterval, logger)
	if err != nil {
		return err
	}
	reaper.Start()
	defer reaper.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.NewRouter(api.NewHandler(mgr, provider, runs), logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	errCh := make(chan error, 3)
	go func() {
		logger.Info("job-chief server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen for gRPC on %s: %w", cfg.GRPCPort, err)
	}
	go func() {
		logger.Info("job-chief gRPC server listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	go func() {
		errCh <- mgr.Start(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			logger.Error("job-chief stopped on error", "error", err)
			runErr = err
		}
	}

	healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	mgr.Stop()
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("job-chief stopped")
	return runErr
}
