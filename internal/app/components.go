package app

import "go.trai.ch/kiln/internal/core/ports"

// Components contains all the initialized application components.
// This struct provides controlled access to components needed by the CLI layer.
type Components struct {
	App       *App
	Logger    ports.Logger
	Telemetry ports.Telemetry
}

// Close flushes step output still held by telemetry.
func (c *Components) Close() {
	if c.Telemetry != nil {
		_ = c.Telemetry.Close()
	}
}
