package metrics

import "time"

// Recorder receives command execution signals. Implementations must be safe
// for concurrent use from handler goroutines and background workers.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
