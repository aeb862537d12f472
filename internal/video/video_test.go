package video

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameSizeHoldsFullFrame(t *testing.T) {
	sizes := [][2]int{{1, 1}, {2, 2}, {3, 5}, {640, 480}, {641, 479}, {1920, 1080}, {7, 1}}
	for _, f := range AllFormats() {
		for _, s := range sizes {
			d := NewStreamDescriptor(s[0], s[1], f)
			require.NoError(t, d.Validate(), "%v", d)
			assert.GreaterOrEqual(t, d.SizeBytes*8, s[0]*s[1]*f.BitsPerPixel(), "%v", d)
			if f.BitsPerPixel()%8 == 0 {
				assert.GreaterOrEqual(t, d.SizeBytes, s[0]*s[1]*f.BitsPerPixel()/8, "%v", d)
			}
		}
	}
}

func TestFrameSizeKnownValues(t *testing.T) {
	assert.Equal(t, 640*480*3, FormatRGB24.FrameSize(640, 480))
	assert.Equal(t, 640*480*3/2, FormatYUV420P.FrameSize(640, 480))
	assert.Equal(t, 3*3+2*2*2, FormatYUV420P.FrameSize(3, 3))
	assert.Equal(t, 4*2*2, FormatYUYV422.FrameSize(3, 2))
	assert.Equal(t, 0, FormatRGB24.FrameSize(0, 10))
	assert.Equal(t, 0, FormatUnknown.FrameSize(10, 10))
}

func TestDescriptorValidate(t *testing.T) {
	assert.Error(t, NewStreamDescriptor(0, 480, FormatRGB24).Validate())
	assert.Error(t, NewStreamDescriptor(640, 480, FormatUnknown).Validate())

	d := NewStreamDescriptor(640, 480, FormatRGB24)
	d.SizeBytes--
	assert.Error(t, d.Validate())

	assert.Equal(t, "640x480 RGB24", NewStreamDescriptor(640, 480, FormatRGB24).String())
}

func TestParsePixelFormat(t *testing.T) {
	tests := []struct {
		in   string
		want PixelFormat
	}{
		{"RGB24", FormatRGB24},
		{"rgb", FormatRGB24},
		{"gray", FormatGray8},
		{" yuyv ", FormatYUYV422},
		{"I420", FormatYUV420P},
		{"YUV420P", FormatYUV420P},
		{"bgr24", FormatBGR24},
		{"rgba", FormatRGBA},
	}
	for _, tc := range tests {
		got, err := ParsePixelFormat(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParsePixelFormat("MJPEG")
	assert.Error(t, err)
}

func TestLayout(t *testing.T) {
	assert.Equal(t, LayoutLuminance, FormatGray8.Layout())
	for _, f := range []PixelFormat{FormatRGB24, FormatBGR24, FormatRGBA, FormatYUYV422, FormatYUV420P} {
		assert.Equal(t, LayoutColor, f.Layout(), f.String())
	}
}

func TestFrameBufferLifecycle(t *testing.T) {
	d := NewStreamDescriptor(4, 2, FormatRGB24)
	b := NewFrameBuffer(d)

	assert.Len(t, b.Bytes(), d.SizeBytes)
	assert.Equal(t, d.SizeBytes+Slack, b.Cap())
	assert.False(t, b.Released())

	b.Release()
	b.Release()
	assert.True(t, b.Released())
	assert.Nil(t, b.Bytes())
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		raw    string
		scheme string
		path   string
		params map[string]string
	}{
		{
			raw:    "ffmpeg:[fps=30,bps=8388608]//video.avi",
			scheme: "ffmpeg",
			path:   "video.avi",
			params: map[string]string{"fps": "30", "bps": "8388608"},
		},
		{
			raw:    "convert:[fmt=RGB24]//v4l:///dev/video0",
			scheme: "convert",
			path:   "v4l:///dev/video0",
			params: map[string]string{"fmt": "RGB24"},
		},
		{
			raw:    "v4l:///dev/video1",
			scheme: "v4l",
			path:   "/dev/video1",
			params: map[string]string{},
		},
		{
			raw:    "dc1394:[fps=30,dma=10,size=640x480,iso=400]//0",
			scheme: "dc1394",
			path:   "0",
			params: map[string]string{"fps": "30", "dma": "10", "size": "640x480", "iso": "400"},
		},
		{
			raw:    "mjpeg://http://127.0.0.1/?action=stream",
			scheme: "mjpeg",
			path:   "http://127.0.0.1/?action=stream",
			params: map[string]string{},
		},
		{
			raw:    "file:[realtime=1]///home/user/video/movie.pvn",
			scheme: "file",
			path:   "/home/user/video/movie.pvn",
			params: map[string]string{"realtime": "1"},
		},
		{
			raw:    "/tmp/movie.avi",
			scheme: "file",
			path:   "/tmp/movie.avi",
			params: map[string]string{},
		},
		{
			raw:    "movie.avi",
			scheme: "file",
			path:   "movie.avi",
			params: map[string]string{},
		},
		{
			raw:    "test:[flag]//bars",
			scheme: "test",
			path:   "bars",
			params: map[string]string{"flag": "1"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			u, err := ParseURI(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.scheme, u.Scheme)
			assert.Equal(t, tc.path, u.Path)
			assert.Equal(t, tc.params, u.Params)
		})
	}
}

func TestParseURIErrors(t *testing.T) {
	for _, raw := range []string{"", "   ", "ffmpeg:[fps=30//video.avi", "xy:[=3]//a"} {
		_, err := ParseURI(raw)
		assert.ErrorIs(t, err, ErrInvalidURI, raw)
	}
}

func TestURIString(t *testing.T) {
	u, err := ParseURI("ffmpeg:[fps=30,bps=8388608]//video.avi")
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg:[bps=8388608,fps=30]//video.avi", u.String())

	again, err := ParseURI(u.String())
	require.NoError(t, err)
	assert.Equal(t, u.Params, again.Params)
	assert.Equal(t, u.Path, again.Path)
}

func TestURIAccessors(t *testing.T) {
	u, err := ParseURI("test:[size=320x240,fps=12.5,n=7,on=yes,wait=250ms,ms=40,fmt=gray]//x")
	require.NoError(t, err)

	w, h, ok, err := u.Size("size")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)

	_, _, ok, err = u.Size("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	fps, err := u.Float("fps", 30)
	require.NoError(t, err)
	assert.Equal(t, 12.5, fps)

	n, err := u.Int("n", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	on, err := u.Bool("on", false)
	require.NoError(t, err)
	assert.True(t, on)

	wait, err := u.Duration("wait", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, wait)

	ms, err := u.Duration("ms", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 40*time.Millisecond, ms)

	f, err := u.Format("fmt", FormatRGB24)
	require.NoError(t, err)
	assert.Equal(t, FormatGray8, f)

	assert.Equal(t, "dflt", u.Get("nope", "dflt"))

	_, err = u.Int("fps", 0)
	assert.Error(t, err)
}

func TestOpenError(t *testing.T) {
	base := fmt.Errorf("probe: %w", ErrDeviceUnavailable)
	err := NewOpenError(RoleSource, "v4l:///dev/video9", base)

	assert.True(t, IsOpenFailure(err))
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))
	assert.Contains(t, err.Error(), "v4l:///dev/video9")

	wrapped := fmt.Errorf("session: %w", err)
	assert.True(t, IsOpenFailure(wrapped))
	assert.Same(t, err, NewOpenError(RoleSink, "other", err))

	assert.Nil(t, NewOpenError(RoleSink, "x", nil))
	assert.False(t, IsOpenFailure(errors.New("plain")))
}

func fillRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 40), uint8(y * 60), 200, 255})
		}
	}
	return img
}

func TestPackedRoundTrip(t *testing.T) {
	src := fillRGBA(5, 3)
	for _, f := range []PixelFormat{FormatRGB24, FormatBGR24, FormatRGBA} {
		d := NewStreamDescriptor(5, 3, f)
		buf := make([]byte, d.SizeBytes)
		require.NoError(t, FromImage(src, d, buf))

		out, err := ToRGBA(buf, d, nil)
		require.NoError(t, err)
		assert.Equal(t, src.Pix, out.Pix, f.String())
	}
}

func TestBGRSwapsChannels(t *testing.T) {
	rgb := NewStreamDescriptor(1, 1, FormatRGB24)
	bgr := NewStreamDescriptor(1, 1, FormatBGR24)
	dst := make([]byte, 3)
	require.NoError(t, Convert([]byte{10, 20, 30}, rgb, dst, bgr))
	assert.Equal(t, []byte{30, 20, 10}, dst)
}

func TestYUVConversionsStayClose(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 6, 4))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 120, 80, 40, 255
	}
	for _, f := range []PixelFormat{FormatYUV420P, FormatYUYV422, FormatGray8} {
		d := NewStreamDescriptor(6, 4, f)
		buf := make([]byte, d.SizeBytes)
		require.NoError(t, FromImage(src, d, buf))

		out, err := ToRGBA(buf, d, nil)
		require.NoError(t, err)
		if f == FormatGray8 {
			y := luma(120, 80, 40)
			assert.Equal(t, y, out.Pix[0])
			assert.Equal(t, y, out.Pix[1])
			continue
		}
		for i := 0; i < len(out.Pix); i += 4 {
			assert.InDelta(t, 120, int(out.Pix[i]), 4, f.String())
			assert.InDelta(t, 80, int(out.Pix[i+1]), 4, f.String())
			assert.InDelta(t, 40, int(out.Pix[i+2]), 4, f.String())
		}
	}
}

func TestConvertRejectsGeometryChange(t *testing.T) {
	a := NewStreamDescriptor(4, 4, FormatRGB24)
	b := NewStreamDescriptor(2, 2, FormatRGB24)
	err := Convert(make([]byte, a.SizeBytes), a, make([]byte, b.SizeBytes), b)
	assert.ErrorIs(t, err, ErrFormatMismatch)
}

func TestToImageShortBuffer(t *testing.T) {
	d := NewStreamDescriptor(4, 4, FormatRGB24)
	_, err := ToImage(make([]byte, d.SizeBytes-1), d)
	assert.Error(t, err)
}
