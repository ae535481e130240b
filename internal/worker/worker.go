// Package worker runs the collection loop: measure, append the raw record,
// compact every complete partition, ship new archives, sleep. Each concern
// fails independently; the loop itself only stops when its context does.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/thekhoo/speedsnake/internal/compact"
	"github.com/thekhoo/speedsnake/internal/config"
	"github.com/thekhoo/speedsnake/internal/core"
	"github.com/thekhoo/speedsnake/internal/records"
	"github.com/thekhoo/speedsnake/internal/speedtest"
	"github.com/thekhoo/speedsnake/internal/upload"
)

// Measurer runs one speed measurement.
type Measurer interface {
	Run(ctx context.Context) (*records.Record, error)
}

type Worker struct {
	measure  Measurer
	store    *records.Store
	compact  *compact.Compactor
	shipper  *upload.Shipper // nil when uploading is disabled
	interval time.Duration
	log      *slog.Logger
}

// New wires the loop from the options carried on ctx by config.Set.
func New(ctx context.Context) (*Worker, error) {
	o := config.Get(ctx)
	shipper, err := upload.Open(o.Upload, o.UploadsDir)
	if err != nil {
		return nil, err
	}
	return &Worker{
		measure:  speedtest.New(o.SpeedtestBin),
		store:    records.NewStore(o.ResultsDir),
		compact:  compact.New(o.ResultsDir, o.UploadsDir, o.Location),
		shipper:  shipper,
		interval: o.Interval,
		log: slog.Default().With(
			slog.String("component", "worker"),
		),
	}, nil
}

// Run iterates immediately, then sleeps interval between iterations, until
// the context is done. Iterations never overlap.
func (w *Worker) Run(ctx context.Context) error {
	if w.shipper != nil {
		// pick up archives whose upload failed before the last shutdown
		if err := w.shipper.Sweep(ctx); err != nil {
			w.log.Error("archive sweep failed", slog.String("err", err.Error()))
		}
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("stopping worker")
			return nil
		case <-timer.C:
			w.Iterate(ctx)
			w.log.Info("sleeping", slog.Duration("interval", w.interval))
			timer.Reset(w.interval)
		}
	}
}

// Iterate performs one pass. A measurement failure skips only the raw
// record append; compaction always runs, and a compaction failure never
// reaches the caller.
func (w *Worker) Iterate(ctx context.Context) {
	rec, err := w.measure.Run(ctx)
	if err != nil {
		w.log.Error("measurement failed", slog.String("err", err.Error()))
	} else {
		w.append(ctx, rec)
	}
	for _, res := range w.compact.CompactAll(ctx) {
		if !res.Compacted() || w.shipper == nil {
			continue
		}
		if err := w.shipper.Ship(ctx, res.Archive); err != nil {
			// the next sweep retries it
			w.log.Error("archive upload failed",
				slog.String("archive", res.Archive),
				slog.String("err", err.Error()),
			)
		}
	}
}

func (w *Worker) append(ctx context.Context, rec *records.Record) {
	asOf, err := rec.Timestamp()
	if err != nil {
		w.log.Warn("record has no usable timestamp, using the clock",
			slog.String("err", err.Error()),
		)
		asOf = core.Now(ctx)
	}
	if _, err := w.store.Append(rec, asOf); err != nil {
		w.log.Error("failed saving raw record", slog.String("err", err.Error()))
	}
}
