package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferKeepsLastCapacityValues(t *testing.T) {
	buf := NewRingBuffer[int](5)
	for i := 1; i <= 12; i++ {
		buf.Push(i)
		assert.LessOrEqual(t, buf.Len(), buf.Cap())
	}
	assert.Equal(t, []int{8, 9, 10, 11, 12}, buf.Values())
}

func TestRingBufferBelowCapacity(t *testing.T) {
	buf := NewRingBuffer[string](4)
	buf.Push("a")
	buf.Push("b")
	assert.Equal(t, 2, buf.Len())
	assert.Equal(t, []string{"a", "b"}, buf.Values())
	assert.Equal(t, []string{"b"}, buf.Last(1))
	assert.Equal(t, []string{"a", "b"}, buf.Last(10))
}

func TestRingBufferEmptyAndReset(t *testing.T) {
	buf := NewRingBuffer[float64](3)
	assert.Empty(t, buf.Values())
	assert.Empty(t, buf.Last(3))

	buf.Push(1)
	buf.Push(2)
	buf.Push(3)
	buf.Push(4)
	assert.Equal(t, []float64{3, 4}, buf.Last(2))

	buf.Reset()
	assert.Equal(t, 0, buf.Len())
	buf.Push(9)
	assert.Equal(t, []float64{9}, buf.Values())
}

func TestRingBufferMinimumCapacity(t *testing.T) {
	buf := NewRingBuffer[int](0)
	assert.Equal(t, 1, buf.Cap())
	buf.Push(1)
	buf.Push(2)
	assert.Equal(t, []int{2}, buf.Values())
}

func TestRingBufferValuesIsCopy(t *testing.T) {
	buf := NewRingBuffer[int](2)
	buf.Push(1)
	values := buf.Values()
	values[0] = 100
	assert.Equal(t, []int{1}, buf.Values())
}
