package main

import (
	"context"

	"github.com/okian/eldlog/internal/adapters/collaborator"
	"github.com/okian/eldlog/internal/adapters/report"
	"github.com/okian/eldlog/internal/adapters/repository"
	service "github.com/okian/eldlog/internal/app"
	"github.com/okian/eldlog/internal/config"
	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/pkg/logger"
)

// buildService assembles the service from cfg: the status log source, the
// snapshot store and the report exporter.
func buildService(ctx context.Context, cfg *config.Config) (*service.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	session := model.NewSession(cfg.TripID, loc)

	source, err := buildSource(cfg, session)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return service.New(source,
		service.WithLogger(logger.Get().Named("service")),
		service.WithSession(session),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithRequestTimeout(cfg.RequestTimeout()),
		service.WithDayTickInterval(cfg.DayTickInterval()),
		service.WithStore(store),
		service.WithExporter(exporter),
	), nil
}

func buildSource(cfg *config.Config, session *model.Session) (collaborator.Source, error) {
	if cfg.SourceFile != "" {
		return collaborator.NewFileSource(cfg.SourceFile, collaborator.WithFileLocation(session.Location())), nil
	}
	client, err := collaborator.New(cfg.CollaboratorURL,
		collaborator.WithTimeout(cfg.RequestTimeout()),
		collaborator.WithSession(session),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func buildStore(cfg *config.Config) (repository.Store, error) {
	if cfg.RedisAddr == "" {
		return repository.NewMemoryStore(), nil
	}
	rc := repository.DefaultRedisConfig(cfg.RedisAddr)
	rc.Prefix = cfg.RedisPrefix
	rc.TTL = cfg.SnapshotTTL()
	store, err := repository.NewRedisStore(rc)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func buildExporter(ctx context.Context, cfg *config.Config) (*report.Exporter, error) {
	opts := []report.Option{
		report.WithSize(cfg.RasterWidth, cfg.RasterHeight),
		report.WithPageWidth(cfg.PageWidthPx),
	}
	if cfg.S3Bucket == "" {
		sink, err := report.NewFileSink(cfg.ReportDir)
		if err != nil {
			return nil, err
		}
		return report.NewExporter(sink, opts...)
	}

	s3cfg := report.S3Config{
		Bucket:          cfg.S3Bucket,
		Prefix:          cfg.S3Prefix,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		UsePathStyle:    cfg.S3PathStyle,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	}
	client, err := report.NewS3Client(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	sink, err := report.NewS3Sink(client, s3cfg)
	if err != nil {
		return nil, err
	}
	return report.NewExporter(sink, opts...)
}
