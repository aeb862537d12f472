package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/ffmpeg"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{Timeout: 500 * time.Millisecond, FFmpegPath: "ffmpeg"}
}

func grab(t *testing.T, src video.Source) []byte {
	t.Helper()
	buf := video.NewFrameBuffer(src.Descriptor())
	t.Cleanup(buf.Release)
	require.True(t, src.GrabNext(buf.Bytes(), true))
	return append([]byte(nil), buf.Bytes()...)
}

func TestOpenPattern(t *testing.T) {
	src, err := Open("test:[size=32x16,fmt=GRAY8,fps=0]//gradient", testOptions())
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "test", src.Name())
	assert.Equal(t, video.NewStreamDescriptor(32, 16, video.FormatGray8), src.Descriptor())

	frame := grab(t, src)
	// Gradient rises left to right
	assert.Less(t, frame[0], frame[31])
}

func TestPatternFrameLimitAndDrops(t *testing.T) {
	src, err := Open("test:[size=8x8,fps=0,frames=3,drop=2]//bars", testOptions())
	require.NoError(t, err)
	defer src.Close()

	ender, ok := src.(video.Ender)
	require.True(t, ok)

	buf := make([]byte, src.Descriptor().SizeBytes)
	var results []bool
	for i := 0; i < 6; i++ {
		results = append(results, src.GrabNext(buf, true))
	}
	// Every second grab fails until three frames were produced
	assert.Equal(t, []bool{true, false, true, false, true, false}, results)
	assert.True(t, ender.EndOfStream())
}

func TestPatternSolidColor(t *testing.T) {
	src, err := Open("test:[size=2x2,fps=0,color=ff8000]//solid", testOptions())
	require.NoError(t, err)
	defer src.Close()

	frame := grab(t, src)
	assert.Equal(t, []byte{0xff, 0x80, 0x00}, frame[:3])

	_, err = Open("test://nonsense", testOptions())
	assert.True(t, video.IsOpenFailure(err))
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		uri  string
		want error
	}{
		{"dc1394:[fps=30,dma=10,size=640x480,iso=400]//0", video.ErrUnknownScheme},
		{"bogus://x", video.ErrUnknownScheme},
		{"test:[size=3x]//bars", nil},
		{"ffmpeg:[fps=30//video.avi", video.ErrInvalidURI},
		{"/definitely/not/here.avi", video.ErrDeviceUnavailable},
		{"files:///definitely/not/here/%03d.png", video.ErrDeviceUnavailable},
		{"mjpeg://ftp://example", video.ErrInvalidURI},
	}
	for _, tc := range tests {
		t.Run(tc.uri, func(t *testing.T) {
			src, err := Open(tc.uri, testOptions())
			require.Error(t, err)
			assert.Nil(t, src)
			assert.True(t, video.IsOpenFailure(err))

			var oe *video.OpenError
			require.True(t, errors.As(err, &oe))
			assert.Equal(t, video.RoleSource, oe.Role)
			assert.Equal(t, tc.uri, oe.URI)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestConvertSource(t *testing.T) {
	src, err := Open("convert:[fmt=GRAY8]//test:[size=4x4,fps=0,frames=1,color=ffffff]//solid", testOptions())
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "convert(test)", src.Name())
	assert.Equal(t, video.FormatGray8, src.Descriptor().Format)
	assert.Equal(t, 16, src.Descriptor().SizeBytes)

	frame := grab(t, src)
	assert.Equal(t, byte(255), frame[0])

	ender := src.(video.Ender)
	assert.True(t, ender.EndOfStream())
	assert.False(t, src.GrabNext(make([]byte, 16), true))
}

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Set(i%w, i/w, c)
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestFilesSource(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 3; i++ {
		writePNG(t, filepath.Join(dir, fmt.Sprintf("seq%03d.png", i)), 6, 4, color.RGBA{uint8(i * 50), 0, 0, 255})
	}
	// A differently sized frame gets scaled to the stream geometry
	writePNG(t, filepath.Join(dir, "seq004.png"), 12, 8, color.RGBA{0, 255, 0, 255})

	src, err := Open("files://"+filepath.Join(dir, "seq%03d.png"), testOptions())
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, video.NewStreamDescriptor(6, 4, video.FormatRGB24), src.Descriptor())

	buf := make([]byte, src.Descriptor().SizeBytes)
	for i := 1; i <= 3; i++ {
		require.True(t, src.GrabNext(buf, true))
		assert.Equal(t, byte(i*50), buf[0])
	}
	require.True(t, src.GrabNext(buf, true))
	assert.Equal(t, []byte{0, 255, 0}, buf[:3])

	assert.True(t, src.(video.Ender).EndOfStream())
	assert.False(t, src.GrabNext(buf, true))
}

func TestExpandSequence(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a0.png", "a1.png", "a2.png", "b.png"} {
		writePNG(t, filepath.Join(dir, name), 1, 1, color.Black)
	}

	paths, err := expandSequence(filepath.Join(dir, "a%d.png"), -1)
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	paths, err = expandSequence(filepath.Join(dir, "a%d.png"), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a2.png")}, paths)

	paths, err = expandSequence(filepath.Join(dir, "*.png"), -1)
	require.NoError(t, err)
	assert.Len(t, paths, 4)

	paths, err = expandSequence(filepath.Join(dir, "b.png"), -1)
	require.NoError(t, err)
	assert.Len(t, paths, 1)

	_, err = expandSequence("", -1)
	assert.ErrorIs(t, err, video.ErrInvalidURI)
}

func TestFakeProcess(t *testing.T) {
	if os.Getenv("GO_TEST_PROCESS") != "1" {
		return
	}
	frames, _ := strconv.Atoi(os.Getenv("FRAMES"))
	size, _ := strconv.Atoi(os.Getenv("SIZE"))
	for i := 0; i < frames; i++ {
		os.Stdout.Write(bytes.Repeat([]byte{byte(i + 1)}, size)) //nolint:errcheck
	}
	os.Exit(0)
}

func TestFileSourceReadsFramesUntilEOF(t *testing.T) {
	desc := video.NewStreamDescriptor(4, 2, video.FormatRGB24)

	cmd := exec.Command(os.Args[0], "-test.run=TestFakeProcess")
	cmd.Env = []string{"GO_TEST_PROCESS=1", "FRAMES=3", "SIZE=" + strconv.Itoa(desc.SizeBytes)}
	proc := ffmpeg.NewProcess(cmd)
	out, err := proc.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, proc.Start())

	src := newFileSource(proc, out, desc, 5*time.Second, logger.WithComponent("file-test"))
	defer src.Close()

	buf := make([]byte, desc.SizeBytes)
	for i := 1; i <= 3; i++ {
		require.True(t, src.GrabNext(buf, true), "frame %d", i)
		assert.Equal(t, bytes.Repeat([]byte{byte(i)}, desc.SizeBytes), buf)
	}
	assert.False(t, src.GrabNext(buf, true))
	assert.True(t, src.EndOfStream())
}

func jpegFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestMJPEGSource(t *testing.T) {
	frame := jpegFrame(t, 16, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
		for i := 0; i < 2; i++ {
			part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
			if err != nil {
				return
			}
			part.Write(frame) //nolint:errcheck
			w.(http.Flusher).Flush()
		}
		mw.Close()
	}))
	defer srv.Close()

	src, err := Open("mjpeg://"+srv.URL+"/?action=stream", testOptions())
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, video.NewStreamDescriptor(16, 8, video.FormatRGB24), src.Descriptor())

	buf := make([]byte, src.Descriptor().SizeBytes)
	require.True(t, src.GrabNext(buf, true))
	assert.InDelta(t, 200, int(buf[0]), 3)

	// Drain whatever is left; the server closed the stream
	for src.GrabNext(buf, true) {
	}
	assert.True(t, src.(video.Ender).EndOfStream())
}

func TestMJPEGSourceRejectsPlainResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello")) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := Open("mjpeg://"+srv.URL, testOptions())
	assert.ErrorIs(t, err, video.ErrDeviceUnavailable)
}

func TestParseRegion(t *testing.T) {
	tests := []struct {
		in   string
		want image.Rectangle
		ok   bool
	}{
		{"1280x720+0+0", image.Rect(0, 0, 1280, 720), true},
		{"640x480+100+50", image.Rect(100, 50, 740, 530), true},
		{"320x200", image.Rect(0, 0, 320, 200), true},
		{"320x200+5", image.Rectangle{}, false},
		{"x200+5+5", image.Rectangle{}, false},
		{"10x10+a+1", image.Rectangle{}, false},
	}
	for _, tc := range tests {
		got, err := ParseRegion(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestMatchWindow(t *testing.T) {
	windows := []WindowInfo{
		{ID: 0x1c00003, Title: "Mozilla Firefox", Class: "firefox"},
		{ID: 0x2400001, Title: "~/src - Terminal", Class: "Alacritty"},
	}

	w, err := MatchWindow(windows, "0x2400001")
	require.NoError(t, err)
	assert.Equal(t, "Alacritty", w.Class)

	w, err = MatchWindow(windows, "FIREFOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1c00003), w.ID)

	w, err = MatchWindow(windows, "terminal")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x2400001), w.ID)

	_, err = MatchWindow(windows, "0x99")
	assert.Error(t, err)
	_, err = MatchWindow(windows, "chromium")
	assert.Error(t, err)
	_, err = MatchWindow(windows, " ")
	assert.Error(t, err)

	assert.Equal(t, "x11:[window=0x1c00003]//", windows[0].URI())
}

func TestBGRXToRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	bgrxToRGBA(img, []byte{1, 2, 3, 0, 4, 5, 6, 0})
	assert.Equal(t, []byte{3, 2, 1, 255, 6, 5, 4, 255}, img.Pix)
}

func TestFourCC(t *testing.T) {
	assert.Equal(t, "YUYV", fourCC(fourccYUYV))
	assert.Equal(t, "MJPG", fourCC(fourccMJPG))

	f, ok := rawFormat(fourccYUYV)
	assert.True(t, ok)
	assert.Equal(t, video.FormatYUYV422, f)
	_, ok = rawFormat(fourccMJPG)
	assert.False(t, ok)

	fc, err := fourccFor("mjpeg")
	require.NoError(t, err)
	assert.Equal(t, fourccMJPG, fc)
	fc, err = fourccFor("YUV420P")
	require.NoError(t, err)
	assert.Equal(t, fourccYU12, fc)
	_, err = fourccFor("RGBA")
	assert.Error(t, err)
}

func TestTimeoutSeconds(t *testing.T) {
	assert.Equal(t, uint32(1), timeoutSeconds(Options{Timeout: 200 * time.Millisecond}))
	assert.Equal(t, uint32(2), timeoutSeconds(Options{Timeout: 2 * time.Second}))
	assert.Equal(t, uint32(3), timeoutSeconds(Options{Timeout: 2100 * time.Millisecond}))
}

func TestPacer(t *testing.T) {
	var none *pacer
	assert.True(t, none.ready(false, 0))
	assert.Nil(t, newPacer(0))

	p := newPacer(10)
	assert.True(t, p.ready(false, time.Second))
	// The next frame is 100ms away
	assert.False(t, p.ready(false, time.Second))
	assert.False(t, p.ready(true, time.Millisecond))
	assert.True(t, p.ready(true, time.Second))
}

func TestSchemes(t *testing.T) {
	list := Schemes()
	require.NotEmpty(t, list)
	seen := map[string]bool{}
	for i, s := range list {
		if i > 0 {
			assert.Less(t, list[i-1].Scheme, s.Scheme)
		}
		u, err := video.ParseURI(s.Example)
		require.NoError(t, err, s.Example)
		assert.Equal(t, s.Scheme, u.Scheme)
		seen[s.Scheme] = true
	}
	for _, s := range []string{"test", "convert", "v4l", "file", "files", "gst", "x11", "mjpeg", "dc1394"} {
		assert.True(t, seen[s], s)
	}
}
