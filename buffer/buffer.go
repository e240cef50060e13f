package buffer

import (
	"math"
	"sync"
)

type Average float64
type Minimum float64
type Maximum float64
type Sum float64

// SampleBuffer is a fixed size ring of samples. Until it wraps only the
// samples actually added count towards the statistics.
type SampleBuffer struct {
	position int
	count    int
	size     int
	data     []float64
	lock     sync.Mutex
}

func NewBuffer(size int) *SampleBuffer {
	if size < 1 {
		size = 1
	}
	return &SampleBuffer{
		size: size,
		data: make([]float64, size),
	}
}

func (b *SampleBuffer) AddItem(val float64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.data[b.position] = val
	b.position++
	if b.position == b.size {
		b.position = 0
	}
	if b.count < b.size {
		b.count++
	}
}

// Len is the number of samples held, at most the buffer size.
func (b *SampleBuffer) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.count
}

// GetAverageMinMaxSum returns zeros for an empty buffer.
func (b *SampleBuffer) GetAverageMinMaxSum() (Average, Minimum, Maximum, Sum) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.summarise(b.count)
}

func (b *SampleBuffer) summarise(n int) (Average, Minimum, Maximum, Sum) {
	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return 0, 0, 0, 0
	}
	index := b.position - n
	if index < 0 {
		// reverse wrap
		index += b.size
	}
	min := math.MaxFloat64
	max := -math.MaxFloat64
	sum := 0.0
	for i := 0; i < n; i++ {
		x := b.data[index]
		sum += x
		if x > max {
			max = x
		}
		if x < min {
			min = x
		}
		index++
		if index == b.size {
			index = 0
		}
	}
	return Average(sum / float64(n)), Minimum(min), Maximum(max), Sum(sum)
}

// GetRawData returns the held samples oldest first.
func (b *SampleBuffer) GetRawData() []float64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	out := make([]float64, 0, b.count)
	index := b.position - b.count
	if index < 0 {
		index += b.size
	}
	for i := 0; i < b.count; i++ {
		out = append(out, b.data[index])
		index++
		if index == b.size {
			index = 0
		}
	}
	return out
}
