package core

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

// SystemStatus is the aggregate shown on the staff status page.
type SystemStatus struct {
	Database struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	} `json:"database"`
	Queue struct {
		Pending    int64 `json:"pending"`
		Processing int64 `json:"processing"`
		Retrying   int64 `json:"retrying"`
	} `json:"queue"`
	Workers struct {
		Active int `json:"active"`
		Total  int `json:"total"`
	} `json:"workers"`
	Memory struct {
		UsedBytes  uint64 `json:"used_bytes"`
		TotalBytes uint64 `json:"total_bytes"`
	} `json:"memory"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CollectSystemStatus is best-effort: a failing part is reported in the result, not as an error.
func CollectSystemStatus(ctx context.Context, db Pinger, metrics *MetricsService, startedAt time.Time) SystemStatus {
	var st SystemStatus

	if db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.Ping(pingCtx)
		cancel()
		st.Database.OK = err == nil
		if err != nil {
			st.Database.Error = err.Error()
		}
	}

	if metrics != nil {
		if qm, err := metrics.Queue(ctx); err == nil {
			st.Queue.Pending = qm.Pending
			st.Queue.Processing = qm.Processing
			st.Queue.Retrying = qm.Retrying
		}
		workers, _ := metrics.Workers(ctx)
		st.Workers.Total = len(workers)
		for _, w := range workers {
			if w.Status != "starting" {
				st.Workers.Active++
			}
		}
	}

	st.Memory.UsedBytes, st.Memory.TotalBytes = readMemInfo()

	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	return st
}

// readMemInfo returns used and total bytes from /proc/meminfo, or zeros when unavailable.
func readMemInfo() (used, total uint64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	var memTotal, memAvailable uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			memTotal = parseKiBLine(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			memAvailable = parseKiBLine(line)
		}
	}
	if memTotal == 0 {
		return 0, 0
	}
	if memAvailable <= memTotal {
		used = (memTotal - memAvailable) * 1024
	}
	return used, memTotal * 1024
}

func parseKiBLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
