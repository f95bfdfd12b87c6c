package rowsync

import "sync/atomic"

// successMap accumulates the target flags each loaded row reached within a
// cycle. Rows are identified by pointer. The index is built once at load and
// only read afterwards, values are updated atomically by concurrent targets.
type successMap[T any] struct {
	index  map[*T]int
	values []int64
}

func newSuccessMap[T any](rows []*T, seed func(*T) int64) *successMap[T] {
	m := &successMap[T]{
		index:  make(map[*T]int, len(rows)),
		values: make([]int64, len(rows)),
	}
	for i, row := range rows {
		m.index[row] = i
		m.values[i] = seed(row)
	}
	return m
}

// or sets flag for the row and reports whether it wasn't set before.
func (m *successMap[T]) or(row *T, flag int64) bool {
	i, ok := m.index[row]
	if !ok {
		return false
	}

	for {
		old := atomic.LoadInt64(&m.values[i])
		if old&flag == flag {
			return false
		}
		if atomic.CompareAndSwapInt64(&m.values[i], old, old|flag) {
			return true
		}
	}
}

func (m *successMap[T]) has(row *T, flag int64) bool {
	v, ok := m.get(row)
	return ok && v&flag == flag
}

func (m *successMap[T]) get(row *T) (int64, bool) {
	i, ok := m.index[row]
	if !ok {
		return 0, false
	}
	return atomic.LoadInt64(&m.values[i]), true
}
