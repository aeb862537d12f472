package output

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/rs/zerolog"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// filesSink writes every frame to its own numbered image file
type filesSink struct {
	stream
	pattern string
	format  string
	quality int
	next    int
	log     *zerolog.Logger
}

var imageFormats = map[string]bool{"png": true, "jpeg": true, "bmp": true, "tiff": true}

func openFiles(u video.URI) (*filesSink, error) {
	pattern := u.Path
	if pattern == "" {
		return nil, fmt.Errorf("%w: files uri has no path", video.ErrInvalidURI)
	}
	if strings.Count(pattern, "%") != 1 {
		return nil, fmt.Errorf("%w: files path needs one numeric verb such as %%05d", video.ErrInvalidURI)
	}

	format := strings.ToLower(u.Get("fmt", ""))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(pattern)), ".")
	}
	switch format {
	case "jpg":
		format = "jpeg"
	case "tif":
		format = "tiff"
	}
	if !imageFormats[format] {
		return nil, fmt.Errorf("%w: unsupported image format %q", video.ErrInvalidURI, format)
	}
	quality, err := jpegQuality(u)
	if err != nil {
		return nil, err
	}
	start, err := u.Int("start", 0)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(pattern)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
	}

	return &filesSink{
		pattern: pattern,
		format:  format,
		quality: quality,
		next:    start,
		log:     logger.WithComponent("files-sink"),
	}, nil
}

func (s *filesSink) Name() string {
	return "files"
}

func (s *filesSink) AddStream(width, height int, format video.PixelFormat) error {
	return s.add(width, height, format)
}

func (s *filesSink) WriteFrame(buf []byte, width, height int, format video.PixelFormat) error {
	if _, err := s.accept(buf, width, height, format); err != nil {
		return err
	}
	img, err := frameImage(buf, s.inputDesc(), s.stream.format)
	if err != nil {
		return err
	}

	path := fmt.Sprintf(s.pattern, s.next)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := s.encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	s.next++
	s.frames++
	return nil
}

func (s *filesSink) encode(f *os.File, img image.Image) error {
	switch s.format {
	case "png":
		return png.Encode(f, img)
	case "jpeg":
		return jpeg.Encode(f, img, &jpeg.Options{Quality: s.quality})
	case "bmp":
		return bmp.Encode(f, img)
	case "tiff":
		return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("unsupported image format %q", s.format)
}

func (s *filesSink) Close() error {
	s.log.Info().
		Uint64("frames", s.frames).
		Str("pattern", s.pattern).
		Msg("Image sequence closed")
	return nil
}
