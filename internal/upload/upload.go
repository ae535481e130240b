// Package upload ships finished archive files to object storage. It is an
// optional tail on compaction: an upload failure is logged and retried on a
// later sweep, and never deletes or blocks anything locally.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
	"github.com/thanos-io/objstore/providers/s3"

	"github.com/thekhoo/speedsnake/internal/config"
)

// KeyPrefix is prepended to every remote object key, mirroring the layout
// the downstream analytics jobs read from.
const KeyPrefix = "results"

const maxRetries = 3

// Shipper uploads archives from a local archive root into one bucket,
// keyed by the archive's path relative to that root.
type Shipper struct {
	bucket objstore.Bucket
	root   string
	log    *slog.Logger
}

// Open builds a Shipper for the configured provider. A blank provider
// returns nil: uploading is disabled.
func Open(o config.Upload, archiveRoot string) (*Shipper, error) {
	bucket, err := newBucket(o)
	if err != nil || bucket == nil {
		return nil, err
	}
	return &Shipper{
		bucket: bucket,
		root:   archiveRoot,
		log: slog.Default().With(
			slog.String("component", "upload"),
		),
	}, nil
}

func newBucket(o config.Upload) (objstore.Bucket, error) {
	switch o.Provider {
	case "":
		return nil, nil
	case "fs":
		return filesystem.NewBucket(o.Directory)
	case "s3":
		return s3.NewBucketWithConfig(nil, s3.Config{
			Bucket:    o.S3Bucket,
			Endpoint:  o.S3Endpoint,
			Region:    os.Getenv("AWS_REGION"),
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		}, "speedsnake")
	default:
		return nil, fmt.Errorf("unknown upload provider %q", o.Provider)
	}
}

// Key maps a local archive path to its remote object key.
func (s *Shipper) Key(path string) (string, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("archive %s is outside the archive root %s", path, s.root)
	}
	return KeyPrefix + "/" + filepath.ToSlash(rel), nil
}

// Ship uploads one archive, retrying transient failures with capped
// exponential backoff.
func (s *Shipper) Ship(ctx context.Context, path string) error {
	key, err := s.Key(path)
	if err != nil {
		return err
	}
	op := func() error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return s.bucket.Upload(ctx, key, f)
	}
	err = backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx,
	))
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	s.log.Info("uploaded archive", slog.String("key", key))
	return nil
}

// Sweep walks the archive tree and ships every parquet file not yet present
// remotely. It catches archives whose upload failed on an earlier run.
func (s *Shipper) Sweep(ctx context.Context) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".parquet") {
			return nil
		}
		key, err := s.Key(path)
		if err != nil {
			return err
		}
		ok, err := s.bucket.Exists(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := s.Ship(ctx, path); err != nil {
			s.log.Error("sweep upload failed",
				slog.String("path", path),
				slog.String("err", err.Error()),
			)
		}
		return nil
	})
}
