package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/thekhoo/speedsnake/internal/cmd"
)

func main() {
	if err := cmd.App().Run(context.Background(), os.Args); err != nil {
		slog.Error("speedsnake exited", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
