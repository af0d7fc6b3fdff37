package setup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/config"
	"github.com/marmos91/dittosmb/pkg/metrics"
	"github.com/marmos91/dittosmb/pkg/smb/client"
	"github.com/marmos91/dittosmb/pkg/smb/lease"
)

// EngineMetrics creates the engine collectors when the metrics section
// enables them. The default lease table records into them, and the
// returned options install them on a session. It returns no options when
// metrics are disabled.
func EngineMetrics(cfg *config.Config) []client.Option {
	engine := config.InitializeMetrics(cfg)
	if engine == nil {
		return nil
	}
	lease.Default().SetMetrics(engine)
	return engine.SessionOptions()
}

// StartMetricsServer serves the shared registry on /metrics. Listen errors
// are logged, not returned.
func StartMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", logger.KeyError, err)
		}
	}()
	return server
}

// StopMetricsServer shuts server down within timeout. A nil server is a
// no-op.
func StopMetricsServer(server *http.Server, timeout time.Duration) error {
	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.Shutdown(ctx)
}
