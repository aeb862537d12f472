package output

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/icza/mjpeg"
	"github.com/rs/zerolog"
)

// aviSink writes a Motion-JPEG AVI without any external encoder
type aviSink struct {
	stream
	path    string
	fps     int
	quality int

	writer mjpeg.AviWriter
	jpeg   bytes.Buffer
	log    *zerolog.Logger
}

func openAVI(u video.URI) (*aviSink, error) {
	if u.Path == "" {
		return nil, fmt.Errorf("%w: avi uri has no output path", video.ErrInvalidURI)
	}
	fps, err := u.Int("fps", 30)
	if err != nil {
		return nil, err
	}
	if fps <= 0 {
		return nil, fmt.Errorf("%w: fps must be positive", video.ErrInvalidURI)
	}
	quality, err := jpegQuality(u)
	if err != nil {
		return nil, err
	}
	if st, err := os.Stat(filepath.Dir(u.Path)); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: output directory of %q does not exist", video.ErrDeviceUnavailable, u.Path)
	}

	return &aviSink{
		path:    u.Path,
		fps:     fps,
		quality: quality,
		log:     logger.WithComponent("avi"),
	}, nil
}

func (s *aviSink) Name() string {
	return "avi"
}

// AddStream creates the file; the AVI header needs the geometry up front
func (s *aviSink) AddStream(width, height int, format video.PixelFormat) error {
	if err := s.add(width, height, format); err != nil {
		return err
	}
	w, err := mjpeg.New(s.path, int32(width), int32(height), int32(s.fps))
	if err != nil {
		return fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
	}
	s.writer = w
	s.log.Info().
		Str("path", s.path).
		Int("width", width).
		Int("height", height).
		Int("fps", s.fps).
		Msg("AVI file created")
	return nil
}

func (s *aviSink) WriteFrame(buf []byte, width, height int, format video.PixelFormat) error {
	if _, err := s.accept(buf, width, height, format); err != nil {
		return err
	}
	s.jpeg.Reset()
	if err := encodeJPEG(&s.jpeg, buf, s.inputDesc(), s.format, s.quality); err != nil {
		return err
	}
	if err := s.writer.AddFrame(s.jpeg.Bytes()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.frames++
	return nil
}

// Close writes the index and patches the frame counts into the header
func (s *aviSink) Close() error {
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	s.log.Info().Uint64("frames", s.frames).Str("path", s.path).Msg("AVI file closed")
	return err
}
