package capture

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/ffmpeg"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/rs/zerolog"
)

// fileSource decodes a media file with an ffmpeg subprocess writing raw
// frames to its stdout
type fileSource struct {
	proc    *ffmpeg.Process
	out     io.ReadCloser
	desc    video.StreamDescriptor
	timeout time.Duration

	frames  chan []byte
	free    chan []byte
	quit    chan struct{}
	drained atomic.Bool
	log     *zerolog.Logger
}

func openFile(u video.URI, opts Options) (video.Source, error) {
	path := u.Path
	if path == "" {
		return nil, fmt.Errorf("%w: file uri has no path", video.ErrInvalidURI)
	}
	// Network inputs are left for ffmpeg to resolve
	if !strings.Contains(path, "://") {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
		}
	}

	format, err := u.Format("fmt", video.FormatRGB24)
	if err != nil {
		return nil, err
	}
	realtime, err := u.Bool("realtime", false)
	if err != nil {
		return nil, err
	}
	loop, err := u.Bool("loop", false)
	if err != nil {
		return nil, err
	}

	w, h, ok, err := u.Size("size")
	if err != nil {
		return nil, err
	}
	if !ok {
		info, err := ffmpeg.Probe(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
		}
		w, h = info.Width, info.Height
	}
	desc := video.NewStreamDescriptor(w, h, format)
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	args, err := ffmpeg.DecodeArgs(path, desc, ffmpeg.DecodeOptions{Realtime: realtime, Loop: loop})
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("file")
	proc := ffmpeg.NewProcess(exec.Command(opts.FFmpegPath, args...))
	proc.SetLogger(log)
	out, err := proc.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := proc.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("%w: start ffmpeg: %v", video.ErrDeviceUnavailable, err)
	}
	log.Debug().Str("cmd", proc.String()).Msg("Decoder started")

	return newFileSource(proc, out, desc, opts.Timeout, log), nil
}

func newFileSource(proc *ffmpeg.Process, out io.ReadCloser, desc video.StreamDescriptor, timeout time.Duration, log *zerolog.Logger) *fileSource {
	s := &fileSource{
		proc:    proc,
		out:     out,
		desc:    desc,
		timeout: timeout,
		frames:  make(chan []byte, 1),
		free:    make(chan []byte, 2),
		quit:    make(chan struct{}),
		log:     log,
	}
	s.free <- make([]byte, desc.SizeBytes)
	s.free <- make([]byte, desc.SizeBytes)
	go s.read()
	return s
}

// read fills free buffers from the pipe until it ends
func (s *fileSource) read() {
	defer close(s.frames)
	for {
		var b []byte
		select {
		case b = <-s.free:
		case <-s.quit:
			return
		}

		if _, err := io.ReadFull(s.out, b); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				s.log.Debug().Err(err).Msg("Decoder pipe closed")
			} else {
				s.log.Info().Msg("End of file")
			}
			return
		}

		select {
		case s.frames <- b:
		case <-s.quit:
			return
		}
	}
}

func (s *fileSource) Name() string {
	return "file"
}

func (s *fileSource) Descriptor() video.StreamDescriptor {
	return s.desc
}

func (s *fileSource) GrabNext(buf []byte, wait bool) bool {
	if !wait {
		select {
		case b, ok := <-s.frames:
			return s.take(buf, b, ok)
		default:
			return false
		}
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case b, ok := <-s.frames:
		return s.take(buf, b, ok)
	case <-timer.C:
		return false
	}
}

func (s *fileSource) take(buf, b []byte, ok bool) bool {
	if !ok {
		s.drained.Store(true)
		return false
	}
	copy(buf, b)
	s.free <- b
	return true
}

// EndOfStream reports true once every decoded frame has been consumed
func (s *fileSource) EndOfStream() bool {
	return s.drained.Load()
}

func (s *fileSource) Close() error {
	close(s.quit)
	err := s.proc.Stop()
	s.out.Close()
	return err
}
