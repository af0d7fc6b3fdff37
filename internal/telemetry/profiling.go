package telemetry

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/grafana/pyroscope-go"

	"github.com/marmos91/dittosmb/internal/logger"
)

// ProfilingConfig configures Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Endpoint is the Pyroscope server URL, e.g. "http://localhost:4040".
	Endpoint string
	// ProfileTypes uses the names accepted by ParseProfileType.
	ProfileTypes []string
	// Tags are attached to every profile next to the version, for example
	// the async depth a bench run is measuring.
	Tags map[string]string
}

var profiling atomic.Bool

// InitProfiling starts pushing profiles to cfg.Endpoint. The returned
// function stops the profiler and flushes what it holds. Disabled, it
// starts nothing and returns a no-op.
func InitProfiling(cfg ProfilingConfig) (stop func() error, err error) {
	if !cfg.Enabled {
		profiling.Store(false)
		return func() error { return nil }, nil
	}

	types := make([]pyroscope.ProfileType, 0, len(cfg.ProfileTypes))
	for _, name := range cfg.ProfileTypes {
		pt, err := ParseProfileType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, pt)
		switch pt {
		case pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration:
			runtime.SetMutexProfileFraction(5)
		case pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration:
			runtime.SetBlockProfileRate(5)
		}
	}

	tags := map[string]string{"version": cfg.ServiceVersion}
	for k, v := range cfg.Tags {
		tags[k] = v
	}

	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.Endpoint,
		Tags:            tags,
		ProfileTypes:    types,
		Logger:          profilingLogger{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	profiling.Store(true)

	return func() error {
		profiling.Store(false)
		return p.Stop()
	}, nil
}

// IsProfilingEnabled reports whether a profiler is running.
func IsProfilingEnabled() bool {
	return profiling.Load()
}

// ParseProfileType maps a configuration name onto a Pyroscope profile.
func ParseProfileType(name string) (pyroscope.ProfileType, error) {
	switch name {
	case "cpu":
		return pyroscope.ProfileCPU, nil
	case "alloc_objects":
		return pyroscope.ProfileAllocObjects, nil
	case "alloc_space":
		return pyroscope.ProfileAllocSpace, nil
	case "inuse_objects":
		return pyroscope.ProfileInuseObjects, nil
	case "inuse_space":
		return pyroscope.ProfileInuseSpace, nil
	case "goroutines":
		return pyroscope.ProfileGoroutines, nil
	case "mutex_count":
		return pyroscope.ProfileMutexCount, nil
	case "mutex_duration":
		return pyroscope.ProfileMutexDuration, nil
	case "block_count":
		return pyroscope.ProfileBlockCount, nil
	case "block_duration":
		return pyroscope.ProfileBlockDuration, nil
	}
	return "", fmt.Errorf("unknown profile type %q", name)
}

// profilingLogger routes the profiler's own messages into the structured
// logger.
type profilingLogger struct{}

func (profilingLogger) Infof(format string, args ...any) {
	logger.Debug(fmt.Sprintf(format, args...), "component", "pyroscope")
}

func (profilingLogger) Debugf(format string, args ...any) {
	logger.Debug(fmt.Sprintf(format, args...), "component", "pyroscope")
}

func (profilingLogger) Errorf(format string, args ...any) {
	logger.Warn(fmt.Sprintf(format, args...), "component", "pyroscope")
}
