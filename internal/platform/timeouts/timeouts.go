// Package timeouts defines shared timeout constants so durations stay
// consistent across the HTTP surface and the side-channel senders.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// SideChannel caps a single best-effort email, SMS, or geocoder call.
const SideChannel = 3 * time.Second
