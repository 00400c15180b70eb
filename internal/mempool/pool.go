// Package mempool provides sized sync.Pool buckets for scratch slices used on
// per-pixel hot paths. A buffer is owned by exactly one caller between Get
// and Put.
package mempool

import (
	"sync"
)

var (
	float32Pools slicePools[float32]
	boolPools    slicePools[bool]
)

// sizeClass rounds n up to the next multiple of 1024 to reduce churn.
func sizeClass(n int) int {
	if n <= 1024 {
		return 1024
	}
	const step = 1024
	r := (n + step - 1) / step
	return r * step
}

type slicePools[T any] struct {
	m sync.Map // key: size class (int), value: *sync.Pool
}

func (sp *slicePools[T]) pool(cls int) *sync.Pool {
	pAny, _ := sp.m.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	return pAny.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

func (sp *slicePools[T]) get(n int) []T {
	cls := sizeClass(n)
	buf, ok := sp.pool(cls).Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	return buf[:n]
}

func (sp *slicePools[T]) put(buf []T) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	if cls != cap(buf) {
		return // not one of ours
	}
	// Reset length to full cap; contents need not be zeroed.
	sp.pool(cls).Put(buf[:cap(buf)]) //nolint:staticcheck
}

// GetFloat32 retrieves a []float32 buffer of length n from the pool. Contents
// are undefined. The caller must return it via PutFloat32 when done.
func GetFloat32(n int) []float32 { return float32Pools.get(n) }

// PutFloat32 returns a buffer to the pool. It is safe to pass a nil slice.
func PutFloat32(buf []float32) { float32Pools.put(buf) }

// GetBool retrieves a zeroed []bool buffer of length n from the pool.
// The caller must return it via PutBool when done.
func GetBool(n int) []bool {
	buf := boolPools.get(n)
	clear(buf)
	return buf
}

// PutBool returns a buffer to the pool. It is safe to pass a nil slice.
func PutBool(buf []bool) { boolPools.put(buf) }
