package atomic

import "sync/atomic"

// Boolean is a boolean value, all actions of it is atomic
type Boolean uint32

// Get reads the value atomically
func (b *Boolean) Get() bool {
	return atomic.LoadUint32((*uint32)(b)) != 0
}

// Set writes the value atomically
func (b *Boolean) Set(v bool) {
	atomic.StoreUint32((*uint32)(b), boolToUint32(v))
}

// Swap stores v and returns the previous value
func (b *Boolean) Swap(v bool) bool {
	return atomic.SwapUint32((*uint32)(b), boolToUint32(v)) != 0
}

func boolToUint32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
