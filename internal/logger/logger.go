package logger

import (
	"log/slog"
	"os"
)

// Setup installs a JSON handler writing to stdout as the default logger.
// level accepts the slog textual levels (DEBUG, INFO, WARN, ERROR); an
// unrecognized value falls back to INFO with a warning.
func Setup(level string) {
	lv, err := parseLevel(level)
	lvl := &slog.LevelVar{}
	lvl.Set(lv)
	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{
					Level: lvl,
				},
			),
		),
	)
	if err != nil {
		slog.Warn("unknown log level, using INFO",
			slog.String("level", level),
			slog.String("err", err.Error()),
		)
	}
}

func parseLevel(level string) (slog.Level, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, err
	}
	return lv, nil
}

func Fail(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
