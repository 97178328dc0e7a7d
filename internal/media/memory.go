package media

import "io"

// Memory is a Source over an in-memory image. Writes past the end grow it.
type Memory struct {
	data []byte
	pos  int64
}

// NewMemory returns a Source reading from data. The slice is used directly.
func NewMemory(data []byte) *Memory {
	return &Memory{data: data}
}

// Bytes returns the current contents.
func (m *Memory) Bytes() []byte {
	return m.data
}

// Read implements io.Reader.
func (m *Memory) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

// Write implements io.Writer.
func (m *Memory) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		if end > int64(cap(m.data)) {
			grown := make([]byte, end, end*2)
			copy(grown, m.data)
			m.data = grown
		} else {
			m.data = m.data[:end]
		}
	}
	copy(m.data[m.pos:], p)
	m.pos = end
	return len(p), nil
}

// Seek implements io.Seeker.
func (m *Memory) Seek(offset int64, whence int) (int64, error) {
	abs, err := resolve(m.pos, int64(len(m.data)), offset, whence)
	if err != nil {
		return m.pos, err
	}
	m.pos = abs
	return abs, nil
}

// Skip moves the offset relative to the current position.
func (m *Memory) Skip(n int64) (int64, error) {
	return m.Seek(n, io.SeekCurrent)
}

// Position returns the current offset.
func (m *Memory) Position() int64 {
	return m.pos
}

// Size returns the image size.
func (m *Memory) Size() (int64, error) {
	return int64(len(m.data)), nil
}

// Truncate cuts or zero-extends the image to size bytes.
func (m *Memory) Truncate(size int64) error {
	if size < 0 {
		return ErrNegativePosition
	}
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, m.data)
	m.data = grown
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
