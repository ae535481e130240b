package must

import (
	"os"

	"log/slog"
)

func Must[T any](r T, err error) func(msg string, args ...any) T {
	return func(msg string, args ...any) T {
		if err != nil {
			slog.Error(msg, append([]any{slog.String("err", err.Error())}, args...)...)
			os.Exit(1)
		}
		return r
	}
}
