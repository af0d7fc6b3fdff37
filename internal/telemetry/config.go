package telemetry

import "time"

// Config holds OpenTelemetry configuration
type Config struct {
	// Enabled indicates whether tracing is enabled
	Enabled bool

	// ServiceName is the name of the service reported to the trace backend
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Endpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	Endpoint string

	// Insecure disables TLS towards the endpoint
	Insecure bool

	// SampleRate is the ratio of compound root spans sampled (0.0 to 1.0).
	// Attempt, fallback close and lease break spans follow their parent.
	SampleRate float64

	// ShutdownTimeout bounds the flush of buffered spans on shutdown
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		ServiceName:     "dsmb",
		ServiceVersion:  "dev",
		Endpoint:        "localhost:4317",
		Insecure:        true,
		SampleRate:      1.0,
		ShutdownTimeout: 5 * time.Second,
	}
}
