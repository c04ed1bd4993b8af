package main

import (
	"log/slog"
	"os"

	"querycore/internal/queryerr"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		attrs := []any{slog.String("error", err.Error())}
		if kind := queryerr.KindOf(err); kind != "" {
			attrs = append(attrs, slog.String("kind", string(kind)))
		}
		slog.Error("querycore failed", attrs...)
		os.Exit(1)
	}
}
