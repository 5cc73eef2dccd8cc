//go:build unix

package metrics

import (
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bcrosbie/agentforge/internal/domain"
)

// RuntimeSampler reads Go heap statistics plus the process peak RSS.
type RuntimeSampler struct{}

func (RuntimeSampler) Sample() (domain.MemorySample, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	var usage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &usage); err != nil {
		return domain.MemorySample{}, err
	}
	maxRSS := uint64(usage.Maxrss)
	if runtime.GOOS == "linux" {
		// Linux reports kilobytes, darwin bytes.
		maxRSS *= 1024
	}
	return domain.MemorySample{
		Timestamp: time.Now().UTC(),
		HeapAlloc: stats.HeapAlloc,
		HeapSys:   stats.HeapSys,
		Sys:       stats.Sys,
		MaxRSS:    maxRSS,
	}, nil
}
