package driven

// MemoryProbe estimates memory available to this process.
type MemoryProbe interface {
	// AvailableMemory returns the free memory estimate in bytes.
	AvailableMemory() (uint64, error)
}
