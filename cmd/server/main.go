package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"exsim/api/grpcserver"
	"exsim/api/httpapi"
	"exsim/config"
	"exsim/domain/orderbook"
	"exsim/events"
	"exsim/infra/kafka"
	"exsim/infra/logging"
	"exsim/infra/memory"
	"exsim/infra/sequence"
	entrywal "exsim/infra/wal/entry"
	exitwal "exsim/infra/wal/exit"
	"exsim/jobs/broadcaster"
	"exsim/service"
	"exsim/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	// ---------------- Entry WAL ----------------

	entryWAL, err := entrywal.Open(entrywal.Config{
		Dir:             cfg.WAL.Dir,
		SegmentSize:     cfg.WAL.SegmentSize,
		SegmentDuration: cfg.WAL.SegmentDuration,
		SyncEveryWrite:  cfg.WAL.SyncEveryWrite,
	})
	if err != nil {
		return fmt.Errorf("entry wal: %w", err)
	}
	defer entryWAL.Close()

	// ---------------- Outbox ----------------

	outbox, err := exitwal.Open(cfg.Outbox.Dir, exitwal.Options{})
	if err != nil {
		return fmt.Errorf("outbox: %w", err)
	}
	defer outbox.Close()

	// ---------------- Memory ----------------

	orders := memory.NewPool(cfg.Pool.MaxOrders, cfg.Pool.Prealloc, func() *orderbook.Order {
		return new(orderbook.Order)
	})
	levels := memory.NewPool(cfg.Pool.MaxLevels, cfg.Pool.Prealloc/4, func() *orderbook.PriceLevel {
		return new(orderbook.PriceLevel)
	})
	monitor := memory.NewMonitor(cfg.Pool.HeapLimitBytes, cfg.Pool.MonitorInterval, log, orders, levels)

	// ---------------- Books ----------------

	orderIDs := sequence.New(0)
	session := events.NewSession()
	reg := service.NewRegistry()
	for _, sec := range cfg.Securities {
		deps := service.Deps{
			WAL:       entryWAL,
			Outbox:    outbox,
			Orders:    orders,
			Levels:    levels,
			OrderIDs:  orderIDs,
			Session:   session,
			Log:       log,
			QueueSize: cfg.Server.QueueSize,
		}
		if log.IsLevelEnabled(logrus.DebugLevel) {
			deps.Listeners = append(deps.Listeners, service.NewBookLogger(log.WithField("security", sec.Symbol)))
		}
		svc := service.NewOrderService(service.BookConfig{
			Security: sec.Symbol,
			TickSize: sec.TickSize,
			LotSize:  sec.LotSize,
		}, deps)
		if err := reg.Add(svc); err != nil {
			return err
		}
	}

	// ---------------- Recovery ----------------

	if _, err := service.Recover(reg, orderIDs, cfg.Snapshot.Dir, cfg.WAL.Dir, log); err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	reg.StartAll()
	defer reg.StopAll()

	// ---------------- Background Jobs ----------------

	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	monitor.Start(jobCtx)
	defer monitor.Stop()

	snapJob := service.NewSnapshotJob(reg, orderIDs, &snapshot.Writer{Dir: cfg.Snapshot.Dir, Keep: cfg.Snapshot.Keep}, entryWAL, cfg.Snapshot.Interval, log)
	snapJob.Start(jobCtx)

	var bc *broadcaster.Broadcaster
	if cfg.Kafka.Enabled {
		pub, err := newPublisher(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		bc = broadcaster.New(outbox, pub, broadcaster.Config{
			Interval:   cfg.Kafka.PublishInterval,
			MaxRetries: cfg.Kafka.MaxRetries,
		}, log)
		bc.Start(jobCtx)
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcSrv := grpcserver.NewGRPCServer(grpcserver.NewServer(reg, cfg.Server.PriceScale, log))

	// ---------------- HTTP ----------------

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           httpapi.NewHandler(reg, cfg.Server.PriceScale, log).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	log.WithFields(logrus.Fields{
		"grpc":       cfg.Server.GRPCAddr,
		"http":       cfg.Server.HTTPAddr,
		"securities": reg.Securities(),
		"session":    session,
	}).Info("exchange running")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	// ---------------- Shutdown ----------------

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracePeriod)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}

	stopJobs()
	<-snapJob.Done()
	if bc != nil {
		<-bc.Done()
		if err := bc.Close(); err != nil {
			log.WithError(err).Warn("close publisher")
		}
	}

	// A last snapshot keeps the next start from replaying the whole day.
	if _, err := snapJob.RunOnce(shutdownCtx); err != nil {
		log.WithError(err).Warn("final snapshot")
	}
	return runErr
}

func newPublisher(cfg config.KafkaConfig) (broadcaster.Publisher, error) {
	switch cfg.Client {
	case "kafka-go":
		p, err := kafka.NewProducer(kafka.Options{
			Brokers:      cfg.Brokers,
			Topic:        cfg.Topic,
			Acks:         cfg.Acks,
			Compression:  cfg.Compression,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		p, err := broadcaster.NewSaramaPublisher(cfg.Brokers, cfg.Topic)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
