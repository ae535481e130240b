package config

import (
	"context"
	"time"
)

// Options is the fully resolved runtime configuration. The CLI layer builds
// it once from flags and environment; everything below consumes it from the
// context.
type Options struct {
	// Interval between measurement iterations.
	Interval time.Duration
	// ResultsDir is the raw record tree root.
	ResultsDir string
	// UploadsDir is the archive tree root.
	UploadsDir string
	// Location identifies this deployment instance; stamped on every
	// archived row and on the archive tree path.
	Location string
	// SpeedtestBin is the external measurement executable.
	SpeedtestBin string

	Upload Upload
}

// Upload configures optional shipping of finished archives to object
// storage. An empty Provider disables it.
type Upload struct {
	// Provider is "", "fs" or "s3".
	Provider string
	// Directory backs the fs provider.
	Directory string
	// S3Bucket and S3Endpoint back the s3 provider; credentials come from
	// the standard AWS environment.
	S3Bucket   string
	S3Endpoint string
}

type optionsKey struct{}

func Set(ctx context.Context, o *Options) context.Context {
	return context.WithValue(ctx, optionsKey{}, o)
}

func Get(ctx context.Context) *Options {
	return ctx.Value(optionsKey{}).(*Options)
}
