package domain

// VertexStatus is the lifecycle state of a build step as reported to telemetry and the plan output.
type VertexStatus string

const (
	// VertexStatusPending indicates the step has not run yet.
	VertexStatusPending VertexStatus = "pending"
	// VertexStatusRunning indicates the step is executing.
	VertexStatusRunning VertexStatus = "running"
	// VertexStatusCompleted indicates the step executed successfully.
	VertexStatusCompleted VertexStatus = "completed"
	// VertexStatusFailed indicates the step failed and the build stopped.
	VertexStatusFailed VertexStatus = "failed"
	// VertexStatusCached indicates the step's layer was reused from the cache.
	VertexStatusCached VertexStatus = "cached"
	// VertexStatusSkipped indicates the step produced nothing, e.g. an empty manifest.
	VertexStatusSkipped VertexStatus = "skipped"
)

// IsTerminal checks if a status is a terminal state.
func (s VertexStatus) IsTerminal() bool {
	switch s {
	case VertexStatusCompleted, VertexStatusFailed, VertexStatusCached, VertexStatusSkipped:
		return true
	default:
		return false
	}
}

// LogLevel represents the severity of a vertex log line, mirroring the slog levels.
type LogLevel int

const (
	LogLevelDebug LogLevel = -4
	LogLevelInfo  LogLevel = 0
	LogLevelWarn  LogLevel = 4
	LogLevelError LogLevel = 8
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}
