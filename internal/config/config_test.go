package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOptionsRoundTrip(t *testing.T) {
	o := &Options{
		Interval:   5 * time.Second,
		ResultsDir: "/tmp/results",
		Location:   "loc1",
	}
	ctx := Set(context.Background(), o)
	require.Same(t, o, Get(ctx))
}
