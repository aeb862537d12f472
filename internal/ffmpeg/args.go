package ffmpeg

import (
	"fmt"
	"strconv"

	"github.com/bryanchriswhite/simplerecord/internal/video"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
)

// PixFmt returns the ffmpeg pix_fmt name of a pixel format
func PixFmt(f video.PixelFormat) (string, error) {
	switch f {
	case video.FormatGray8:
		return "gray", nil
	case video.FormatRGB24:
		return "rgb24", nil
	case video.FormatBGR24:
		return "bgr24", nil
	case video.FormatRGBA:
		return "rgba", nil
	case video.FormatYUYV422:
		return "yuyv422", nil
	case video.FormatYUV420P:
		return "yuv420p", nil
	}
	return "", fmt.Errorf("no ffmpeg pix_fmt for %s", f)
}

var quietArgs = []string{"-hide_banner", "-loglevel", "error", "-nostdin"}

// DecodeOptions control how a media file is decoded to raw frames
type DecodeOptions struct {
	// Realtime reads input at its native frame rate (-re)
	Realtime bool
	// Loop restarts the input forever
	Loop bool
}

// DecodeArgs builds arguments that decode path into raw frames of desc on
// stdout
func DecodeArgs(path string, desc video.StreamDescriptor, opts DecodeOptions) ([]string, error) {
	pixFmt, err := PixFmt(desc.Format)
	if err != nil {
		return nil, err
	}

	in := ffmpeggo.KwArgs{}
	if opts.Loop {
		in["stream_loop"] = "-1"
	}

	args := ffmpeggo.Input(path, in).
		Output("pipe:", ffmpeggo.KwArgs{
			"format":  "rawvideo",
			"pix_fmt": pixFmt,
			"s":       fmt.Sprintf("%dx%d", desc.Width, desc.Height),
			"map":     "0:v:0",
		}).
		GetArgs()

	if opts.Realtime {
		args = append([]string{"-re"}, args...)
	}
	return append(append([]string(nil), quietArgs...), args...), nil
}

// EncodeOptions control how raw frames are encoded
type EncodeOptions struct {
	FPS     int
	Bitrate int
	Codec   string
	// Format is the pixel format stored in the output file
	Format video.PixelFormat
	// Container forces the muxer, otherwise ffmpeg picks one from the path
	Container string
}

// EncodeArgs builds arguments that read raw frames of in from stdin and
// encode them into path
func EncodeArgs(path string, in video.StreamDescriptor, opts EncodeOptions) ([]string, error) {
	inFmt, err := PixFmt(in.Format)
	if err != nil {
		return nil, err
	}
	outFmt := inFmt
	if opts.Format.Valid() {
		if outFmt, err = PixFmt(opts.Format); err != nil {
			return nil, err
		}
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = 30
	}

	out := ffmpeggo.KwArgs{"pix_fmt": outFmt}
	if opts.Bitrate > 0 {
		out["b:v"] = strconv.Itoa(opts.Bitrate)
	}
	if opts.Codec != "" {
		out["c:v"] = opts.Codec
	}
	if opts.Container != "" {
		out["format"] = opts.Container
	}

	args := ffmpeggo.Input("pipe:", ffmpeggo.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   inFmt,
		"s":         fmt.Sprintf("%dx%d", in.Width, in.Height),
		"framerate": strconv.Itoa(fps),
	}).
		Output(path, out).
		OverWriteOutput().
		GetArgs()

	return append(append([]string(nil), quietArgs...), args...), nil
}
