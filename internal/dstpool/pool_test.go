package dstpool

import (
	"bytes"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-sacd/internal/container"
)

const (
	dsd64     = 2822400
	frameRate = 75
	stereo    = dsd64 / 8 / frameRate * 2
)

// markDecoder fills the output with the first input byte. Inputs starting
// with 0xEE fail and inputs starting with 0xEF panic.
type markDecoder struct {
	block chan struct{}
}

func (d *markDecoder) Decode(out, frame []byte) error {
	switch frame[0] {
	case 0xEE:
		return errors.New("corrupt")
	case 0xEF:
		panic("boom")
	case 0xB0:
		<-d.block
	}
	for i := range out {
		out[i] = frame[0]
	}
	return nil
}

func newMarkPool(t *testing.T, n int, created *atomic.Int32) *Pool {
	t.Helper()
	p := New(n, nil)
	p.newDecoder = func(int, int, int) (FrameDecoder, error) {
		if created != nil {
			created.Add(1)
		}
		return &markDecoder{}, nil
	}
	require.NoError(t, p.Init(2, dsd64, frameRate))
	t.Cleanup(p.Close)
	return p
}

func TestPipelineOrderAndLatency(t *testing.T) {
	const slots = 3
	p := newMarkPool(t, slots, nil)
	assert.Equal(t, stereo, p.FrameSize())

	var got []byte
	for k := 1; k <= 6; k++ {
		out := p.Decode([]byte{byte(k)})
		if k < slots {
			assert.Nil(t, out, "frame %d", k)
			continue
		}
		require.Len(t, out, stereo)
		got = append(got, out[0])
	}
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	assert.True(t, p.Pending())
	for p.Pending() {
		out := p.Decode(nil)
		require.NotNil(t, out)
		got = append(got, out[0])
	}
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, got)
	assert.Nil(t, p.Decode(nil))
}

func TestSingleSlotHasNoLatency(t *testing.T) {
	p := newMarkPool(t, 1, nil)
	out := p.Decode([]byte{7})
	require.NotNil(t, out)
	assert.Equal(t, byte(7), out[0])
	assert.False(t, p.Pending())
}

func TestFaultYieldsSilenceAndRecovers(t *testing.T) {
	for _, marker := range []byte{0xEE, 0xEF} {
		var created atomic.Int32
		p := newMarkPool(t, 2, &created)

		assert.Nil(t, p.Decode([]byte{marker}))
		out := p.Decode([]byte{0x11})
		require.Len(t, out, stereo)
		assert.Equal(t, bytes.Repeat([]byte{container.SilenceByte}, stereo), out)

		out = p.Decode(nil)
		require.NotNil(t, out)
		assert.Equal(t, byte(0x11), out[0])

		// One decoder per slot plus the replacement after the fault.
		assert.Equal(t, int32(3), created.Load())
	}
}

func TestInputIsCopied(t *testing.T) {
	p := newMarkPool(t, 2, nil)
	frame := []byte{0x21}
	assert.Nil(t, p.Decode(frame))
	frame[0] = 0x22
	out := p.Decode(frame)
	require.NotNil(t, out)
	assert.Equal(t, byte(0x21), out[0])
}

func TestStoredDSTFrames(t *testing.T) {
	p := New(2, nil)
	require.NoError(t, p.Init(2, dsd64, frameRate))
	defer p.Close()

	payload := bytes.Repeat([]byte{0x5a}, stereo)
	frame := append([]byte{0x00}, payload...)
	assert.Nil(t, p.Decode(frame))
	out := p.Decode(nil)
	assert.Equal(t, payload, out)
}

func TestInitRejectsBadFormat(t *testing.T) {
	p := New(2, nil)
	require.ErrorIs(t, p.Init(2, dsd64, 0), ErrInit)
	require.ErrorIs(t, p.Init(9, dsd64, frameRate), ErrInit)
	assert.Nil(t, p.Decode([]byte{1}))
}

func TestReinitReplacesWorkers(t *testing.T) {
	var created atomic.Int32
	p := newMarkPool(t, 4, &created)
	p.Decode([]byte{1})
	require.NoError(t, p.Init(2, dsd64, frameRate))
	assert.Equal(t, int32(8), created.Load())
	assert.False(t, p.Pending())
	assert.Nil(t, p.Decode([]byte{2}))
}

func TestCloseAbandonsStuckWorker(t *testing.T) {
	var logs bytes.Buffer
	p := New(2, &logging.DefaultLoggerFactory{Writer: &logs, DefaultLogLevel: logging.LogLevelError})
	dec := &markDecoder{block: make(chan struct{})}
	p.newDecoder = func(int, int, int) (FrameDecoder, error) { return dec, nil }
	require.NoError(t, p.Init(2, dsd64, frameRate))

	p.Decode([]byte{0xB0})
	require.Eventually(t, func() bool {
		return p.slots[0].getState() == slotRunning
	}, time.Second, time.Millisecond)

	start := time.Now()
	p.Close()
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, logs.String(), "could not stop DST decoder slot 0")

	// The abandoned worker keeps its own generation and stays out of the
	// next one.
	require.NoError(t, p.Init(2, dsd64, frameRate))
	assert.Nil(t, p.Decode([]byte{0x31}))
	out := p.Decode([]byte{0x32})
	require.NotNil(t, out)
	assert.Equal(t, byte(0x31), out[0])

	close(dec.block)
	p.Close()
}

func TestStuckSlotTimesOutToSilence(t *testing.T) {
	var created atomic.Int32
	block := make(chan struct{})
	p := New(2, nil)
	p.WaitTimeout = 20 * time.Millisecond
	p.newDecoder = func(int, int, int) (FrameDecoder, error) {
		created.Add(1)
		return &markDecoder{block: block}, nil
	}
	require.NoError(t, p.Init(2, dsd64, frameRate))
	t.Cleanup(func() {
		close(block)
		p.Close()
	})

	assert.Nil(t, p.Decode([]byte{0xB0}))
	out := p.Decode([]byte{0x11})
	require.Len(t, out, stereo)
	assert.Equal(t, bytes.Repeat([]byte{container.SilenceByte}, stereo), out)
	// The stuck slot was replaced.
	assert.Equal(t, int32(3), created.Load())

	out = p.Decode([]byte{0x12})
	require.NotNil(t, out)
	assert.Equal(t, byte(0x11), out[0])

	out = p.Decode(nil)
	require.NotNil(t, out)
	assert.Equal(t, byte(0x12), out[0])
	assert.False(t, p.Pending())
}

func TestResetDropsQueuedFrames(t *testing.T) {
	p := newMarkPool(t, 3, nil)
	p.Decode([]byte{1})
	p.Decode([]byte{2})
	require.True(t, p.Pending())

	p.Reset()
	assert.False(t, p.Pending())
	assert.Nil(t, p.Decode([]byte{3}))
	assert.Nil(t, p.Decode([]byte{4}))
	out := p.Decode([]byte{5})
	require.NotNil(t, out)
	assert.Equal(t, byte(3), out[0])
}
