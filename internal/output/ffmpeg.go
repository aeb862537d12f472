package output

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/ffmpeg"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/rs/zerolog"
)

// commandFunc builds the encoder command, replaced in tests
type commandFunc func(name string, args ...string) *exec.Cmd

// ffmpegSink pipes raw frames into an ffmpeg encoder. The process starts
// with the first frame, once the input pixel format is known.
type ffmpegSink struct {
	stream
	path    string
	opts    ffmpeg.EncodeOptions
	binary  string
	timeout time.Duration
	command commandFunc

	proc  *ffmpeg.Process
	stdin io.WriteCloser
	log   *zerolog.Logger
}

func openFFmpeg(u video.URI, opts Options, command commandFunc) (*ffmpegSink, error) {
	path := u.Path
	if path == "" {
		return nil, fmt.Errorf("%w: ffmpeg uri has no output path", video.ErrInvalidURI)
	}
	fps, err := u.Int("fps", 30)
	if err != nil {
		return nil, err
	}
	bps, err := u.Int("bps", 0)
	if err != nil {
		return nil, err
	}

	// Network outputs are left for ffmpeg to resolve
	if !strings.Contains(path, "://") {
		if dir := filepath.Dir(path); dir != "" {
			if st, err := os.Stat(dir); err != nil || !st.IsDir() {
				return nil, fmt.Errorf("%w: output directory %q does not exist", video.ErrDeviceUnavailable, dir)
			}
		}
	}

	binary := opts.FFmpegPath
	if command == nil {
		if _, err := exec.LookPath(binary); err != nil {
			return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
		}
		command = exec.Command
	}

	return &ffmpegSink{
		path: path,
		opts: ffmpeg.EncodeOptions{
			FPS:       fps,
			Bitrate:   bps,
			Codec:     u.Get("codec", ""),
			Container: u.Get("container", ""),
		},
		binary:  binary,
		timeout: opts.Timeout,
		command: command,
		log:     logger.WithComponent("ffmpeg-sink"),
	}, nil
}

func (s *ffmpegSink) Name() string {
	return "ffmpeg"
}

func (s *ffmpegSink) AddStream(width, height int, format video.PixelFormat) error {
	if _, err := ffmpeg.PixFmt(format); err != nil {
		return err
	}
	if err := s.add(width, height, format); err != nil {
		return err
	}
	s.opts.Format = format
	return nil
}

func (s *ffmpegSink) WriteFrame(buf []byte, width, height int, format video.PixelFormat) error {
	first, err := s.accept(buf, width, height, format)
	if err != nil {
		return err
	}
	if first {
		if err := s.start(); err != nil {
			return err
		}
	}
	if s.proc.Exited() {
		return fmt.Errorf("encoder exited: %v", s.proc.Wait())
	}

	n := s.inputDesc().SizeBytes
	if _, err := s.stdin.Write(buf[:n]); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.frames++
	return nil
}

func (s *ffmpegSink) start() error {
	args, err := ffmpeg.EncodeArgs(s.path, s.inputDesc(), s.opts)
	if err != nil {
		return err
	}

	proc := ffmpeg.NewProcess(s.command(s.binary, args...))
	proc.SetTimeout(s.timeout)
	proc.SetLogger(s.log)
	stdin, err := proc.StdinPipe()
	if err != nil {
		return err
	}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	s.proc, s.stdin = proc, stdin

	s.log.Info().
		Str("path", s.path).
		Str("input", s.inputDesc().String()).
		Str("stored", s.storedDesc().String()).
		Msg("Encoder started")
	s.log.Debug().Str("cmd", s.proc.String()).Msg("Encoder command")
	return nil
}

// Close ends the input and waits for ffmpeg to finalize the file
func (s *ffmpegSink) Close() error {
	if s.proc == nil {
		return nil
	}
	err := s.proc.Finish(s.timeout)
	s.log.Info().Uint64("frames", s.frames).Str("path", s.path).Msg("Encoder finished")
	return err
}
