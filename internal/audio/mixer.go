package audio

import (
	"encoding/binary"
	"errors"
	"io"
)

// mixedStream sums two little-endian 16-bit PCM streams sample-wise with
// clamping. When one side reaches EOF the other passes through unchanged.
type mixedStream struct {
	a, b         io.Reader
	aDone, bDone bool
	aBuf, bBuf   []byte
	scratch      []byte
}

func newMixedStream(a, b io.Reader) *mixedStream {
	return &mixedStream{a: a, b: b}
}

func (m *mixedStream) Read(p []byte) (int, error) {
	want := len(p) &^ 1
	if want == 0 {
		return 0, nil
	}

	for {
		if err := m.fill(want); err != nil {
			return 0, err
		}

		if m.aDone && len(m.aBuf) == 0 && m.bDone && len(m.bBuf) == 0 {
			return 0, io.EOF
		}
		if m.aDone && len(m.aBuf) == 0 {
			if n := m.drain(p[:want], &m.bBuf); n > 0 {
				return n, nil
			}
			continue
		}
		if m.bDone && len(m.bBuf) == 0 {
			if n := m.drain(p[:want], &m.aBuf); n > 0 {
				return n, nil
			}
			continue
		}

		n := min(want, min(len(m.aBuf), len(m.bBuf))) &^ 1
		if n == 0 {
			continue
		}

		for i := 0; i < n; i += 2 {
			sa := int32(int16(binary.LittleEndian.Uint16(m.aBuf[i:])))
			sb := int32(int16(binary.LittleEndian.Uint16(m.bBuf[i:])))
			sum := sa + sb
			if sum > 32767 {
				sum = 32767
			} else if sum < -32768 {
				sum = -32768
			}
			binary.LittleEndian.PutUint16(p[i:], uint16(int16(sum)))
		}
		m.aBuf = m.aBuf[n:]
		m.bBuf = m.bBuf[n:]
		return n, nil
	}
}

// fill performs at most one read per source that is short of want bytes.
func (m *mixedStream) fill(want int) error {
	if cap(m.scratch) < want {
		m.scratch = make([]byte, want)
	}
	buf := m.scratch[:want]

	if !m.aDone && len(m.aBuf) < want {
		n, err := m.a.Read(buf)
		if n > 0 {
			m.aBuf = append(m.aBuf, buf[:n]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			m.aDone = true
		}
	}
	if !m.bDone && len(m.bBuf) < want {
		n, err := m.b.Read(buf)
		if n > 0 {
			m.bBuf = append(m.bBuf, buf[:n]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			m.bDone = true
		}
	}
	return nil
}

func (m *mixedStream) drain(p []byte, buf *[]byte) int {
	n := copy(p, *buf)
	n &^= 1
	*buf = (*buf)[n:]
	return n
}
