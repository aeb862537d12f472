package ffmpeg

import (
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeProcess(t *testing.T) {
	if os.Getenv("GO_TEST_PROCESS") != "1" {
		return
	}
	switch os.Getenv("MODE") {
	case "sleep":
		time.Sleep(time.Hour)
	case "echo":
		io.Copy(os.Stdout, os.Stdin) //nolint:errcheck
	case "fail":
		os.Stderr.WriteString("boom\n") //nolint:errcheck
		os.Exit(3)
	default:
		os.Stdout.WriteString("out") //nolint:errcheck
	}
	os.Exit(0)
}

func fakeExecCommand(mode string) *exec.Cmd {
	cmd := exec.Command(os.Args[0], "-test.run=TestFakeProcess")
	cmd.Env = []string{"GO_TEST_PROCESS=1", "MODE=" + mode}
	return cmd
}

func TestProcessStdout(t *testing.T) {
	p := NewProcess(fakeExecCommand(""))
	out, err := p.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, p.Start())

	data, err := io.ReadAll(out)
	require.NoError(t, err)
	// The test binary may print its own trailer after exiting the test
	assert.Contains(t, string(data), "out")
	require.NoError(t, p.Wait())
	assert.True(t, p.Exited())
}

func TestProcessEcho(t *testing.T) {
	p := NewProcess(fakeExecCommand("echo"))
	in, err := p.StdinPipe()
	require.NoError(t, err)
	out, err := p.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, p.Start())

	_, err = in.Write([]byte("frame"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	_, err = io.ReadFull(out, buf)
	require.NoError(t, err)
	assert.Equal(t, "frame", string(buf))

	require.NoError(t, p.Finish(5*time.Second))
}

func TestProcessStopKillsSleeper(t *testing.T) {
	p := NewProcess(fakeExecCommand("sleep"))
	p.SetTimeout(100 * time.Millisecond)
	require.NoError(t, p.Start())

	start := time.Now()
	require.NoError(t, p.Stop())
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, p.Exited())
}

func TestProcessExitError(t *testing.T) {
	p := NewProcess(fakeExecCommand("fail"))
	p.SetLogger(logger.WithComponent("ffmpeg-test"))
	require.NoError(t, p.Start())
	assert.Error(t, p.Wait())
}

func TestProcessNotStarted(t *testing.T) {
	p := NewProcess(fakeExecCommand(""))
	assert.ErrorIs(t, p.Stop(), ErrNotStarted)
	assert.ErrorIs(t, p.Wait(), ErrNotStarted)
}

// flagValues returns every value following flag in args
func flagValues(args []string, flag string) []string {
	var values []string
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			values = append(values, args[i+1])
		}
	}
	return values
}

func TestEncodeArgs(t *testing.T) {
	in := video.NewStreamDescriptor(640, 480, video.FormatRGB24)
	args, err := EncodeArgs("video.avi", in, EncodeOptions{
		FPS:     25,
		Bitrate: 8388608,
		Format:  video.FormatYUV420P,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"pipe:"}, flagValues(args, "-i"))
	assert.Equal(t, []string{"rgb24", "yuv420p"}, flagValues(args, "-pix_fmt"))
	assert.Equal(t, []string{"640x480"}, flagValues(args, "-s"))
	assert.Equal(t, []string{"25"}, flagValues(args, "-framerate"))
	assert.Equal(t, []string{"8388608"}, flagValues(args, "-b:v"))
	assert.Contains(t, args, "-y")
	assert.Contains(t, args, "video.avi")
	assert.Contains(t, flagValues(args, "-f"), "rawvideo")
}

func TestEncodeArgsDefaultsToInputFormat(t *testing.T) {
	in := video.NewStreamDescriptor(2, 2, video.FormatGray8)
	args, err := EncodeArgs("out.mkv", in, EncodeOptions{Codec: "ffv1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gray", "gray"}, flagValues(args, "-pix_fmt"))
	assert.Equal(t, []string{"ffv1"}, flagValues(args, "-c:v"))
	assert.Equal(t, []string{"30"}, flagValues(args, "-framerate"))
}

func TestDecodeArgs(t *testing.T) {
	desc := video.NewStreamDescriptor(320, 240, video.FormatYUV420P)
	args, err := DecodeArgs("/tmp/movie.avi", desc, DecodeOptions{Realtime: true, Loop: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"/tmp/movie.avi"}, flagValues(args, "-i"))
	assert.Equal(t, []string{"yuv420p"}, flagValues(args, "-pix_fmt"))
	assert.Equal(t, []string{"-1"}, flagValues(args, "-stream_loop"))
	assert.Contains(t, args, "-re")
	assert.Equal(t, "pipe:", args[len(args)-1])

	_, err = DecodeArgs("x", video.StreamDescriptor{}, DecodeOptions{})
	assert.Error(t, err)
}

func TestParseProbe(t *testing.T) {
	out := `{
	"streams": [
		{"codec_type": "audio", "codec_name": "aac"},
		{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720,
		 "avg_frame_rate": "30000/1001", "r_frame_rate": "30/1"}
	],
	"format": {"duration": "12.500000"}
}`
	info, err := parseProbe(out)
	require.NoError(t, err)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)
	assert.Equal(t, "h264", info.Codec)
	assert.InDelta(t, 29.97, info.FPS, 0.01)
	assert.Equal(t, 12500*time.Millisecond, info.Duration)

	_, err = parseProbe(`{"streams": [{"codec_type": "audio"}]}`)
	assert.Error(t, err)

	_, err = parseProbe(`not json`)
	assert.Error(t, err)
}

func TestParseRate(t *testing.T) {
	assert.Equal(t, 25.0, parseRate("25/1"))
	assert.Equal(t, 0.0, parseRate("0/0"))
	assert.Equal(t, 12.0, parseRate("12"))
	assert.Equal(t, 0.0, parseRate(""))
}
