// Package svcctx carries the services of one fitbind session through context.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/fitbind/internal/config"
	"github.com/jackzampolin/fitbind/internal/home"
	"github.com/jackzampolin/fitbind/internal/jobs"
	"github.com/jackzampolin/fitbind/internal/pdfdoc"
	"github.com/jackzampolin/fitbind/internal/render"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Logger     *slog.Logger
	Config     *config.Manager
	Home       *home.Dir
	Pool       *jobs.CPUWorkerPool
	Dispatcher *jobs.Dispatcher
	Toolkit    *pdfdoc.Toolkit
	Compressor render.Compressor
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// LoggerFrom extracts the logger from context, falling back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// DispatcherFrom extracts the compression dispatcher from context.
func DispatcherFrom(ctx context.Context) *jobs.Dispatcher {
	if s := ServicesFrom(ctx); s != nil {
		return s.Dispatcher
	}
	return nil
}

// ToolkitFrom extracts the PDF toolkit from context.
func ToolkitFrom(ctx context.Context) *pdfdoc.Toolkit {
	if s := ServicesFrom(ctx); s != nil {
		return s.Toolkit
	}
	return nil
}
