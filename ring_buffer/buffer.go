package ring_buffer

// Buffer keeps the most recent samples up to a fixed capacity.
type Buffer struct {
	buffer []int16
	head   int
	filled int
}

func New(size int) *Buffer {
	return &Buffer{
		buffer: make([]int16, size),
	}
}

func (r *Buffer) Add(samples []int16) {
	if len(r.buffer) == 0 {
		return
	}

	for _, s := range samples {
		r.buffer[r.head] = s
		r.head = (r.head + 1) % len(r.buffer)
	}

	r.filled += len(samples)
	if r.filled > len(r.buffer) {
		r.filled = len(r.buffer)
	}
}

// Read returns the buffered samples, oldest first.
func (r *Buffer) Read() []int16 {
	samples := make([]int16, r.filled)
	start := (r.head - r.filled + len(r.buffer)) % max(len(r.buffer), 1)
	for i := 0; i < r.filled; i++ {
		samples[i] = r.buffer[(start+i)%len(r.buffer)]
	}

	return samples
}

func (r *Buffer) Len() int {
	return r.filled
}

func (r *Buffer) Clear() {
	for i := 0; i < len(r.buffer); i++ {
		r.buffer[i] = 0
	}

	r.head = 0
	r.filled = 0
}
