package output

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/capture"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rgbFrame returns a w x h RGB24 frame filled with one color
func rgbFrame(w, h int, c color.RGBA) []byte {
	buf := make([]byte, w*h*3)
	for i := 0; i < len(buf); i += 3 {
		buf[i], buf[i+1], buf[i+2] = c.R, c.G, c.B
	}
	return buf
}

func TestOpenErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing", "dir")
	tests := []struct {
		uri  string
		want error
	}{
		{"bogus://x", video.ErrUnknownScheme},
		{"avi://" + missing + "/out.avi", video.ErrDeviceUnavailable},
		{"avi:[quality=101]//out.avi", video.ErrInvalidURI},
		{"files:///tmp/frame.png", video.ErrInvalidURI},
		{"files:[fmt=gif]//" + t.TempDir() + "/f%03d.gif", video.ErrInvalidURI},
		{"ffmpeg:[fps=30//video.avi", video.ErrInvalidURI},
		{"ffmpeg://" + missing + "/out.mp4", video.ErrDeviceUnavailable},
		{"ws://127.0.0.1:1/ingest", video.ErrDeviceUnavailable},
		{"gst://", video.ErrInvalidURI},
	}
	for _, tc := range tests {
		t.Run(tc.uri, func(t *testing.T) {
			sink, err := Open(tc.uri, Options{Timeout: time.Second})
			require.Error(t, err)
			assert.Nil(t, sink)
			assert.True(t, video.IsOpenFailure(err))
			assert.ErrorIs(t, err, tc.want)

			var oe *video.OpenError
			require.True(t, errors.As(err, &oe))
			assert.Equal(t, video.RoleSink, oe.Role)
		})
	}
}

func TestStreamChecks(t *testing.T) {
	sink, err := Open("null://", DefaultOptions())
	require.NoError(t, err)
	defer sink.Close()

	frame := rgbFrame(4, 2, color.RGBA{A: 255})
	assert.Error(t, sink.WriteFrame(frame, 4, 2, video.FormatRGB24), "write before AddStream")

	require.NoError(t, sink.AddStream(4, 2, video.FormatYUV420P))
	assert.Error(t, sink.AddStream(4, 2, video.FormatYUV420P), "second AddStream")

	require.NoError(t, sink.WriteFrame(frame, 4, 2, video.FormatRGB24))
	assert.ErrorIs(t, sink.WriteFrame(frame, 2, 4, video.FormatRGB24), video.ErrFormatMismatch)
	assert.ErrorIs(t, sink.WriteFrame(frame, 4, 2, video.FormatBGR24), video.ErrFormatMismatch)
	assert.Error(t, sink.WriteFrame(frame[:5], 4, 2, video.FormatRGB24))
	require.NoError(t, sink.WriteFrame(frame, 4, 2, video.FormatRGB24))

	assert.Error(t, (&nullSink{}).AddStream(0, 2, video.FormatRGB24))
}

func TestAVISinkWritesRIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	sink, err := Open("avi:[fps=10,quality=80]//"+path, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, sink.AddStream(32, 16, video.FormatRGB24))
	for i := 0; i < 3; i++ {
		require.NoError(t, sink.WriteFrame(rgbFrame(32, 16, color.RGBA{R: uint8(i * 80), A: 255}), 32, 16, video.FormatRGB24))
	}
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 12)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "AVI ", string(data[8:12]))
	assert.Contains(t, string(data), "movi")
	assert.Contains(t, string(data), "idx1")
	// Every frame is stored as a JPEG starting with SOI
	assert.Equal(t, 3, bytes.Count(data, []byte{0xff, 0xd8, 0xff}))
}

func TestFilesSinkWritesPNGSequence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seq")
	sink, err := Open("files:[start=1]//"+filepath.Join(dir, "frame%03d.png"), DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, sink.AddStream(6, 4, video.FormatRGB24))
	require.NoError(t, sink.WriteFrame(rgbFrame(6, 4, color.RGBA{10, 20, 30, 255}), 6, 4, video.FormatRGB24))
	require.NoError(t, sink.WriteFrame(rgbFrame(6, 4, color.RGBA{40, 50, 60, 255}), 6, 4, video.FormatRGB24))
	require.NoError(t, sink.Close())

	for i, want := range []color.RGBA{{10, 20, 30, 255}, {40, 50, 60, 255}} {
		f, err := os.Open(filepath.Join(dir, []string{"frame001.png", "frame002.png"}[i]))
		require.NoError(t, err)
		img, err := png.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 6, 4), img.Bounds())
		assert.Equal(t, want, color.RGBAModel.Convert(img.At(3, 2)))
	}
	_, err = os.Stat(filepath.Join(dir, "frame000.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestFilesSinkStoresGray(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open("files:[fmt=png]//"+filepath.Join(dir, "g%d.img"), DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, sink.AddStream(2, 2, video.FormatGray8))
	require.NoError(t, sink.WriteFrame(rgbFrame(2, 2, color.RGBA{255, 255, 255, 255}), 2, 2, video.FormatRGB24))

	f, err := os.Open(filepath.Join(dir, "g0.img"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, color.GrayModel, img.ColorModel())
}

func TestHTTPSinkFeedsMJPEGSource(t *testing.T) {
	raw, err := Open("http:[addr=127.0.0.1:0,quality=95]//live", DefaultOptions())
	require.NoError(t, err)
	sink := raw.(*httpSink)
	defer sink.Close()

	require.NoError(t, sink.AddStream(16, 8, video.FormatRGB24))

	type result struct {
		src video.Source
		err error
	}
	opened := make(chan result, 1)
	go func() {
		src, err := capture.Open("mjpeg://http://"+sink.Addr()+"/live", capture.Options{Timeout: 3 * time.Second})
		opened <- result{src, err}
	}()

	frame := rgbFrame(16, 8, color.RGBA{200, 200, 200, 255})
	var res result
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
wait:
	for {
		select {
		case res = <-opened:
			break wait
		case <-ticker.C:
			require.NoError(t, sink.WriteFrame(frame, 16, 8, video.FormatRGB24))
		}
	}
	require.NoError(t, res.err)
	defer res.src.Close()

	assert.Equal(t, video.NewStreamDescriptor(16, 8, video.FormatRGB24), res.src.Descriptor())
	buf := make([]byte, res.src.Descriptor().SizeBytes)
	require.True(t, res.src.GrabNext(buf, true))
	assert.InDelta(t, 200, int(buf[0]), 4)
	assert.Equal(t, 1, sink.hub.Clients())
}

func TestHTTPSinkViewerPage(t *testing.T) {
	raw, err := Open("http:[addr=127.0.0.1:0]//", DefaultOptions())
	require.NoError(t, err)
	sink := raw.(*httpSink)

	resp, err := http.Get("http://" + sink.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `src="/stream"`)

	require.NoError(t, sink.Close())
	_, err = http.Get("http://" + sink.Addr() + "/stream")
	assert.Error(t, err)
}

func TestBroadcasterClosedRefusesClients(t *testing.T) {
	b := NewBroadcaster("test")
	b.Publish([]byte{1})
	assert.Equal(t, uint64(1), b.Frames())
	assert.False(t, b.LastUpdate().IsZero())
	b.Close()

	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebSocketSink(t *testing.T) {
	received := make(chan []byte, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				close(received)
				return
			}
			if mt == websocket.BinaryMessage {
				received <- data
			}
		}
	}))
	defer srv.Close()

	uri := "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/ingest"
	sink, err := Open(uri, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, sink.AddStream(8, 8, video.FormatRGB24))
	require.NoError(t, sink.WriteFrame(rgbFrame(8, 8, color.RGBA{0, 0, 255, 255}), 8, 8, video.FormatRGB24))
	require.NoError(t, sink.Close())

	select {
	case data := <-received:
		img, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
	}

	// The close frame ends the server's read loop
	select {
	case _, ok := <-received:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("connection not closed")
	}
}

func TestFakeEncoder(t *testing.T) {
	if os.Getenv("GO_TEST_PROCESS") != "1" {
		return
	}
	out := os.Getenv("OUT")
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	os.WriteFile(out+".args", []byte(strings.Join(args, "\n")), 0644) //nolint:errcheck

	f, err := os.Create(out)
	if err != nil {
		os.Exit(1)
	}
	io.Copy(f, os.Stdin) //nolint:errcheck
	f.Close()
	os.Exit(0)
}

func TestFFmpegSinkFeedsEncoder(t *testing.T) {
	dir := t.TempDir()
	captured := filepath.Join(dir, "stdin.raw")
	command := func(name string, args ...string) *exec.Cmd {
		cmd := exec.Command(os.Args[0], append([]string{"-test.run=TestFakeEncoder", "--"}, args...)...)
		cmd.Env = []string{"GO_TEST_PROCESS=1", "OUT=" + captured}
		return cmd
	}

	u, err := video.ParseURI("ffmpeg:[fps=25,bps=1000000]//" + filepath.Join(dir, "video.avi"))
	require.NoError(t, err)
	sink, err := openFFmpeg(u, Options{FFmpegPath: "ffmpeg", Timeout: 5 * time.Second}, command)
	require.NoError(t, err)

	require.NoError(t, sink.AddStream(4, 4, video.FormatYUV420P))
	frame := rgbFrame(4, 4, color.RGBA{1, 2, 3, 255})
	for i := 0; i < 3; i++ {
		require.NoError(t, sink.WriteFrame(frame, 4, 4, video.FormatRGB24))
	}
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(captured)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat(frame, 3), data)

	argData, err := os.ReadFile(captured + ".args")
	require.NoError(t, err)
	args := strings.Split(string(argData), "\n")
	assert.Contains(t, args, filepath.Join(dir, "video.avi"))
	assert.Contains(t, args, "rgb24")
	assert.Contains(t, args, "yuv420p")
	assert.Contains(t, args, "4x4")
	assert.Contains(t, args, "25")
	assert.Contains(t, args, "1000000")
}

func TestFFmpegSinkCloseWithoutFrames(t *testing.T) {
	u, err := video.ParseURI("ffmpeg://" + filepath.Join(t.TempDir(), "video.avi"))
	require.NoError(t, err)
	sink, err := openFFmpeg(u, DefaultOptions(), exec.Command)
	require.NoError(t, err)
	require.NoError(t, sink.AddStream(4, 4, video.FormatYUV420P))
	assert.NoError(t, sink.Close())
}

func TestEncodeJPEG(t *testing.T) {
	desc := video.NewStreamDescriptor(8, 4, video.FormatRGB24)
	data, err := EncodeJPEG(rgbFrame(8, 4, color.RGBA{255, 0, 0, 255}), desc, 90)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, _, _, _ := img.At(4, 2).RGBA()
	assert.Greater(t, r>>8, uint32(200))

	_, err = EncodeJPEG(make([]byte, 3), desc, 90)
	assert.Error(t, err)
}

func TestSchemes(t *testing.T) {
	list := Schemes()
	for i, s := range list {
		if i > 0 {
			assert.Less(t, list[i-1].Scheme, s.Scheme)
		}
		u, err := video.ParseURI(s.Example)
		require.NoError(t, err, s.Example)
		assert.Equal(t, s.Scheme, u.Scheme)
	}
	assert.Len(t, list, 7)
}
