// system.go captures process runtime state for metric events.

package beacon

import (
	"os"
	"runtime"
	"time"
)

// processStart is the origin for uptime.
var processStart = time.Now()

// ProcessStart returns when the process loaded this package.
func ProcessStart() time.Time { return processStart }

// SystemState is a snapshot of process runtime metrics.
type SystemState struct {
	MemoryBytes    int64
	HeapObjects    int64
	GoroutineCount int
	NumGC          int64
	UptimeMs       int64
	HostName       string
}

// CaptureSystemState captures system metrics at now.
// The startTime parameter is used to calculate process uptime.
func CaptureSystemState(startTime, now time.Time) SystemState {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hostname, _ := os.Hostname() // empty hostname is acceptable

	uptimeMs := now.Sub(startTime).Milliseconds()
	if uptimeMs < 0 {
		uptimeMs = 0 // Clamp to 0 if start time is in the future
	}

	return SystemState{
		MemoryBytes:    int64(memStats.Alloc),
		HeapObjects:    int64(memStats.HeapObjects),
		GoroutineCount: runtime.NumGoroutine(),
		NumGC:          int64(memStats.NumGC),
		UptimeMs:       uptimeMs,
		HostName:       hostname,
	}
}

// MetricEvents converts the snapshot into one metric raw event per
// measurement, stamped with at.
func (s SystemState) MetricEvents(at time.Time) []RawEvent {
	host := map[string]any{}
	if s.HostName != "" {
		host["host_name"] = s.HostName
	}
	metric := func(name string, value float64, unit string) RawEvent {
		return RawEvent{
			Category:  CategoryMetric,
			Name:      name,
			Timestamp: at,
			Value:     value,
			Unit:      unit,
			Fields:    host,
		}
	}
	return []RawEvent{
		metric("runtime.memory.alloc", float64(s.MemoryBytes), "bytes"),
		metric("runtime.memory.heap_objects", float64(s.HeapObjects), "objects"),
		metric("runtime.goroutines", float64(s.GoroutineCount), "goroutines"),
		metric("runtime.gc.count", float64(s.NumGC), "collections"),
		metric("process.uptime", float64(s.UptimeMs), "ms"),
	}
}
