// Package sysmem reports the host's available memory.
package sysmem

import (
	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
)

// Ensure Probe implements the interface.
var _ driven.MemoryProbe = (*Probe)(nil)

// Probe reads available memory from the operating system.
type Probe struct {
	// Reserve is subtracted from the reported figure, keeping headroom for
	// the rest of the host.
	Reserve uint64
}

// NewProbe creates a probe that keeps reserve bytes back.
func NewProbe(reserve uint64) *Probe {
	return &Probe{Reserve: reserve}
}

// AvailableMemory returns available memory minus the reserve.
func (p *Probe) AvailableMemory() (uint64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get memory stats")
	}
	if v.Available <= p.Reserve {
		return 0, nil
	}
	return v.Available - p.Reserve, nil
}
