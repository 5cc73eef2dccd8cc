//go:build !unix

package metrics

import (
	"runtime"
	"time"

	"github.com/bcrosbie/agentforge/internal/domain"
)

type RuntimeSampler struct{}

func (RuntimeSampler) Sample() (domain.MemorySample, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return domain.MemorySample{
		Timestamp: time.Now().UTC(),
		HeapAlloc: stats.HeapAlloc,
		HeapSys:   stats.HeapSys,
		Sys:       stats.Sys,
	}, nil
}
