package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/thekhoo/speedsnake/internal/config"
	"github.com/thekhoo/speedsnake/internal/logger"
	"github.com/thekhoo/speedsnake/internal/must"
	"github.com/thekhoo/speedsnake/internal/worker"
	"github.com/thekhoo/speedsnake/version"
)

func App() *cli.Command {
	return &cli.Command{
		Name:    "speedsnake",
		Usage:   "Periodic network speed measurements stored as partitioned parquet archives",
		Version: version.VERSION,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Time to sleep between measurements",
				Value:   5 * time.Second,
				Sources: cli.EnvVars("SPEEDSNAKE_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "results",
				Usage:   "Directory for raw measurement records",
				Value:   "results",
				Sources: cli.EnvVars("SPEEDSNAKE_RESULTS_DIR"),
			},
			&cli.StringFlag{
				Name:    "uploads",
				Usage:   "Directory for compacted archive files",
				Value:   "uploads",
				Sources: cli.EnvVars("SPEEDSNAKE_UPLOADS_DIR"),
			},
			&cli.StringFlag{
				Name:    "location",
				Usage:   "Identifier of this deployment instance, stamped on every archived row",
				Sources: cli.EnvVars("SPEEDSNAKE_LOCATION_UUID"),
			},
			&cli.StringFlag{
				Name:    "speedtestBin",
				Usage:   "External speed measurement executable",
				Value:   "speedtest",
				Sources: cli.EnvVars("SPEEDSNAKE_SPEEDTEST_BIN"),
			},
			&cli.StringFlag{
				Name:    "logLevel",
				Value:   "INFO",
				Sources: cli.EnvVars("SPEEDSNAKE_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "uploadProvider",
				Usage:   "Object storage provider for finished archives (fs or s3, empty disables)",
				Sources: cli.EnvVars("SPEEDSNAKE_UPLOAD_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "uploadDir",
				Usage:   "Bucket directory for the fs upload provider",
				Sources: cli.EnvVars("SPEEDSNAKE_UPLOAD_DIR"),
			},
			&cli.StringFlag{
				Name:    "s3Bucket",
				Usage:   "Bucket name for the s3 upload provider",
				Sources: cli.EnvVars("SPEEDSNAKE_S3_BUCKET"),
			},
			&cli.StringFlag{
				Name:    "s3Endpoint",
				Usage:   "Endpoint for the s3 upload provider",
				Sources: cli.EnvVars("SPEEDSNAKE_S3_ENDPOINT"),
			},
		},
		Action: run,
	}
}

func run(ctx context.Context, c *cli.Command) error {
	logger.Setup(c.String("logLevel"))

	location := c.String("location")
	if location == "" {
		location = uuid.NewString()
		slog.Warn("no location configured, minted one for this run",
			slog.String("location", location),
		)
	}
	o := &config.Options{
		Interval:     c.Duration("interval"),
		ResultsDir:   must.Must(filepath.Abs(c.String("results")))("invalid results directory"),
		UploadsDir:   must.Must(filepath.Abs(c.String("uploads")))("invalid uploads directory"),
		Location:     location,
		SpeedtestBin: c.String("speedtestBin"),
		Upload: config.Upload{
			Provider:   c.String("uploadProvider"),
			Directory:  c.String("uploadDir"),
			S3Bucket:   c.String("s3Bucket"),
			S3Endpoint: c.String("s3Endpoint"),
		},
	}
	ctx = config.Set(ctx, o)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := worker.New(ctx)
	if err != nil {
		logger.Fail("failed configuring archive upload", "err", err)
	}
	slog.Info("starting speedsnake",
		slog.Duration("interval", o.Interval),
		slog.String("results", o.ResultsDir),
		slog.String("uploads", o.UploadsDir),
		slog.String("location", o.Location),
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(ctx)
	})
	err = g.Wait()
	slog.Info("exiting")
	return err
}
