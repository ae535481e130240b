package core

import (
	"context"
	"time"
)

// NowFunc a function that returns the current time.
type NowFunc func() time.Time

type nowKey struct{}

func SetNow(ctx context.Context, now NowFunc) context.Context {
	return context.WithValue(ctx, nowKey{}, now)
}

func GetNow(ctx context.Context) NowFunc {
	if v := ctx.Value(nowKey{}); v != nil {
		return v.(NowFunc)
	}
	return fallback
}

func fallback() time.Time {
	return time.Now().UTC()
}

func Now(ctx context.Context) time.Time {
	return GetNow(ctx)()
}
