// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dukex/taskflow/pkg/bodies/failbody"
	"github.com/dukex/taskflow/pkg/bodies/httprequest"
	"github.com/dukex/taskflow/pkg/bodies/logbody"
	"github.com/dukex/taskflow/pkg/bodies/setbody"
	"github.com/dukex/taskflow/pkg/bodies/sleepbody"
	"github.com/dukex/taskflow/pkg/registry"
)

const httpClientTimeout = 5 * time.Minute

func registerNativeBodies(reg *registry.Registry, logger *slog.Logger) {
	reg.Register(logbody.NewFactory(logger))
	reg.Register(setbody.NewFactory())
	reg.Register(sleepbody.NewFactory())
	reg.Register(failbody.NewFactory())
	reg.Register(httprequest.NewFactory(&http.Client{Timeout: httpClientTimeout}, logger))
}

// NewRegistry returns a registry with the built-in bodies and, when pluginsPath
// exists, every plugin found there. Plugins may replace built-in types.
func NewRegistry(_ context.Context, log *slog.Logger, pluginsPath string) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	registerNativeBodies(reg, log)

	if pluginsPath == "" {
		return reg, nil
	}

	if _, err := os.Stat(pluginsPath); err != nil {
		log.Debug("Plugins path not available, skipping", "path", pluginsPath, "error", err)

		return reg, nil
	}

	if err := reg.LoadPlugins(pluginsPath); err != nil {
		return nil, fmt.Errorf("failed to load plugins: %w", err)
	}

	return reg, nil
}
