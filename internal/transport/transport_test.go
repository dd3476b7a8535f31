package transport

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader hands out its chunks one Read at a time and then reports
// idle reads, like a serial port with a read timeout.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, nil
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func TestLineBufferJoinsPartialReads(t *testing.T) {
	b := newLineBuffer()
	r := &chunkReader{chunks: []string{"+UUDF:F4CE5F", "C91A6A,-50,12", ",34\r\nOK\r\n", "+STA"}}
	deadline := time.Now().Add(time.Second)

	line, err := b.readLine(r, deadline)
	require.NoError(t, err)
	assert.Equal(t, "+UUDF:F4CE5FC91A6A,-50,12,34", line)

	line, err = b.readLine(r, deadline)
	require.NoError(t, err)
	assert.Equal(t, "OK", line)

	// partial line stays buffered, an idle read is a timeout
	line, err = b.readLine(r, deadline)
	require.NoError(t, err)
	assert.Equal(t, "", line)

	r.chunks = []string{"RTUP\n"}
	line, err = b.readLine(r, deadline)
	require.NoError(t, err)
	assert.Equal(t, "+STARTUP", line)
}

func TestLineBufferReset(t *testing.T) {
	b := newLineBuffer()
	r := &chunkReader{chunks: []string{"stale\nhalf"}}
	line, err := b.readLine(r, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "stale", line)

	b.reset()
	r.chunks = []string{"fresh\n"}
	line, err = b.readLine(r, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "fresh", line)
}

func TestLineBufferDropsOverlongLines(t *testing.T) {
	b := newLineBuffer()
	noise := strings.Repeat("x", 512)
	r := &chunkReader{}
	for i := 0; i < 9; i++ {
		r.chunks = append(r.chunks, noise)
	}
	r.chunks = append(r.chunks, "xx\nOK\n")

	line, err := b.readLine(r, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "OK", line)
	assert.Equal(t, 9*512+3, b.dropped)
	assert.Zero(t, b.pending.Len())
	assert.False(t, b.skipping)
}

func TestTimeoutReaderMapsEOF(t *testing.T) {
	n, err := timeoutReader{strings.NewReader("")}.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.NoError(t, err)
}

func TestInterCharacterTimeout(t *testing.T) {
	assert.Equal(t, uint(100), interCharacterTimeout(10*time.Millisecond))
	assert.Equal(t, uint(2000), interCharacterTimeout(2*time.Second))
	assert.Equal(t, uint(300), interCharacterTimeout(250*time.Millisecond))
	assert.Equal(t, uint(25500), interCharacterTimeout(time.Minute))
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"123", "OK"}, splitLines([]byte("123\nOK")))
	assert.Equal(t, []string{"a", "b"}, splitLines([]byte("a\r\nb\r\n")))
	assert.Nil(t, splitLines([]byte("\r\n")))
}

func TestReplayMemory(t *testing.T) {
	m := NewReplay([]string{"one", "two"})
	for _, want := range []string{"one", "two"} {
		line, err := m.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}
	_, err := m.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestMemoryTimesOutAndResponds(t *testing.T) {
	m := NewMemory(20 * time.Millisecond)
	m.Respond = func(line string) []string {
		if line == "ENABLE=1" {
			return []string{"OK"}
		}
		return []string{"ERROR"}
	}

	start := time.Now()
	line, err := m.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "", line)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	require.NoError(t, m.WriteLine("ENABLE=1"))
	line, err = m.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "OK", line)
	assert.Equal(t, []string{"ENABLE=1"}, m.Written())

	require.NoError(t, m.Close())
	_, err = m.ReadLine()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUDPTransportSplitsDatagrams(t *testing.T) {
	tr, err := ListenUDP(UDPOptions{Listen: "127.0.0.1:0", ReadTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer tr.Close()

	local := tr.(*udpTransport).conn.LocalAddr().(*net.UDPAddr)
	out, err := net.DialUDP("udp", nil, local)
	require.NoError(t, err)
	defer out.Close()

	_, err = out.Write([]byte("first\r\nsecond\r\n"))
	require.NoError(t, err)

	line, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "first", line)
	line, err = tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "second", line)

	line, err = tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "", line)

	assert.ErrorIs(t, tr.WriteLine("x"), ErrReadOnly)
}

func TestUDPRejectsUnicastGroup(t *testing.T) {
	_, err := ListenUDP(UDPOptions{Listen: "127.0.0.1:0", Group: "10.0.0.1"})
	assert.Error(t, err)
}

func TestWebSocketTransport(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			reply := "OK"
			if string(msg) == "GET_ANGLE" {
				reply = "40\nOK"
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	tr, err := DialWebSocket(url, 200*time.Millisecond)
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.WriteLine("GET_ANGLE"))
	line, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "40", line)
	line, err = tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "OK", line)

	line, err = tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "", line)
}
