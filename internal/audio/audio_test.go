package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEncoder emits the frame index as a one-byte packet.
type countingEncoder struct{ n byte }

func (e *countingEncoder) Encode([]int16, int, int) ([]byte, error) {
	e.n++
	return []byte{e.n}, nil
}

func frames(n int) []byte {
	return make([]byte, n*FrameSize*Channels*2)
}

func TestStreamSendsWholeFramesOnly(t *testing.T) {
	send := make(chan []byte, 10)
	pcm := append(frames(3), 1, 2, 3) // trailing partial frame

	require.NoError(t, Stream(context.Background(), bytes.NewReader(pcm), &countingEncoder{}, send))
	close(send)

	var got []byte
	for p := range send {
		got = append(got, p...)
	}
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	send := make(chan []byte) // nobody reads
	errc := make(chan error, 1)
	go func() { errc <- Stream(ctx, bytes.NewReader(frames(5)), &countingEncoder{}, send) }()

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStreamReportsReadError(t *testing.T) {
	err := Stream(context.Background(), failingReader{}, &countingEncoder{}, make(chan []byte, 1))
	assert.ErrorContains(t, err, "broken pipe")
}

type fakeConn struct {
	channel string
	send    chan []byte
	mu      sync.Mutex
	closed  bool
}

func (c *fakeConn) ChannelID() string    { return c.channel }
func (c *fakeConn) Send() chan<- []byte { return c.send }
func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// blockingDecoder returns a reader that yields one frame and then blocks
// until the playback context ends.
type blockingDecoder struct {
	inputs []string
	err    error
}

type ctxReader struct {
	ctx  context.Context
	head io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if n, err := r.head.Read(p); n > 0 || !errors.Is(err, io.EOF) {
		return n, err
	}
	<-r.ctx.Done()
	return 0, io.EOF
}

func (r *ctxReader) Close() error { return nil }

func (d *blockingDecoder) Decode(ctx context.Context, input string) (io.ReadCloser, error) {
	d.inputs = append(d.inputs, input)
	if d.err != nil {
		return nil, d.err
	}
	return &ctxReader{ctx: ctx, head: bytes.NewReader(frames(1))}, nil
}

type finiteDecoder struct{ n int }

func (d finiteDecoder) Decode(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(frames(d.n))), nil
}

func newManager(dec Decoder) (*Manager, map[string]*fakeConn) {
	conns := map[string]*fakeConn{}
	var mu sync.Mutex
	m := NewManager(Options{
		Dial: func(_ context.Context, guildID, channelID string) (Conn, error) {
			mu.Lock()
			defer mu.Unlock()
			c := &fakeConn{channel: channelID, send: make(chan []byte, 64)}
			conns[channelID] = c
			return c, nil
		},
		Decoder:    dec,
		NewEncoder: func() (Encoder, error) { return &countingEncoder{}, nil },
		Logger:     zerolog.Nop(),
	})
	return m, conns
}

func TestPlayRequiresConnection(t *testing.T) {
	m, _ := newManager(&blockingDecoder{})
	assert.ErrorIs(t, m.Play("g1", "x", nil), ErrNotConnected)
}

func TestPlayRefusesOverlap(t *testing.T) {
	dec := &blockingDecoder{}
	m, conns := newManager(dec)
	require.NoError(t, m.Join(context.Background(), "g1", "v1"))

	require.NoError(t, m.Play("g1", "first", nil))
	assert.True(t, m.Busy("g1"))
	assert.ErrorIs(t, m.Play("g1", "second", nil), ErrBusy)
	assert.Equal(t, []string{"first"}, dec.inputs)

	select {
	case p := <-conns["v1"].send:
		assert.Equal(t, []byte{1}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("no packet sent")
	}

	assert.True(t, m.Stop("g1"))
	assert.False(t, m.Busy("g1"))
	assert.False(t, m.Stop("g1"))
}

func TestPlayCallsOnDone(t *testing.T) {
	m, _ := newManager(finiteDecoder{n: 2})
	require.NoError(t, m.Join(context.Background(), "g1", "v1"))

	done := make(chan error, 1)
	require.NoError(t, m.Play("g1", "clip", func(err error) { done <- err }))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("onDone not called")
	}
	assert.False(t, m.Busy("g1"))
}

func TestPlayDecodeErrorReleasesGuild(t *testing.T) {
	m, _ := newManager(&blockingDecoder{err: errors.New("no ffmpeg")})
	require.NoError(t, m.Join(context.Background(), "g1", "v1"))

	assert.ErrorContains(t, m.Play("g1", "x", nil), "no ffmpeg")
	assert.False(t, m.Busy("g1"))
}

func TestJoinMovesAndLeave(t *testing.T) {
	m, conns := newManager(&blockingDecoder{})
	ctx := context.Background()

	require.NoError(t, m.Join(ctx, "g1", "v1"))
	require.NoError(t, m.Join(ctx, "g1", "v1"))
	assert.Len(t, conns, 1, "rejoining the same channel does not dial")

	require.NoError(t, m.Play("g1", "x", nil))
	require.NoError(t, m.Join(ctx, "g1", "v2"))
	assert.True(t, conns["v1"].isClosed())
	assert.False(t, m.Busy("g1"), "moving stops playback")
	assert.Equal(t, "v2", m.ChannelID("g1"))

	assert.True(t, m.Leave("g1"))
	assert.True(t, conns["v2"].isClosed())
	assert.False(t, m.Connected("g1"))
	assert.False(t, m.Leave("g1"))
}
