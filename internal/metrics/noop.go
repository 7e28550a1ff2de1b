package metrics

import "time"

// NoopRecorder drops every signal. Used when metrics are disabled and in
// tests.
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
