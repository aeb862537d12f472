package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/rs/zerolog"
)

// maxPartSize bounds a single JPEG part
const maxPartSize = 16 << 20

// mjpegSource reads a multipart/x-mixed-replace JPEG stream
type mjpegSource struct {
	desc    video.StreamDescriptor
	timeout time.Duration
	cancel  context.CancelFunc
	body    io.ReadCloser

	frames chan image.Image
	ended  atomic.Bool
	done   chan struct{}
	log    *zerolog.Logger
}

func openMJPEG(u video.URI, opts Options) (video.Source, error) {
	url := u.Path
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: mjpeg path must be an http url", video.ErrInvalidURI)
	}
	format, err := u.Format("fmt", video.FormatRGB24)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", video.ErrInvalidURI, err)
	}

	// Only the connection and headers are bounded by the timeout
	connectTimer := time.AfterFunc(opts.Timeout, cancel)
	resp, err := http.DefaultClient.Do(req)
	connectTimer.Stop()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
	}

	s, err := newMJPEGSource(resp, format, opts.Timeout)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}
	s.cancel = cancel
	return s, nil
}

func newMJPEGSource(resp *http.Response, format video.PixelFormat, timeout time.Duration) (*mjpegSource, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http status %s", video.ErrDeviceUnavailable, resp.Status)
	}
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return nil, fmt.Errorf("%w: not a multipart stream (%q)", video.ErrDeviceUnavailable, resp.Header.Get("Content-Type"))
	}

	s := &mjpegSource{
		timeout: timeout,
		body:    resp.Body,
		frames:  make(chan image.Image, 1),
		done:    make(chan struct{}),
		log:     logger.WithComponent("mjpeg-client"),
	}
	go s.read(multipart.NewReader(resp.Body, params["boundary"]))

	// The first frame fixes the stream geometry
	var first image.Image
	select {
	case first = <-s.frames:
	case <-s.done:
		select {
		case first = <-s.frames:
		default:
			return nil, fmt.Errorf("%w: stream ended before the first frame", video.ErrDeviceUnavailable)
		}
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: no frame within %v", video.ErrDeviceUnavailable, timeout)
	}
	b := first.Bounds()
	s.desc = video.NewStreamDescriptor(b.Dx(), b.Dy(), format)
	// Put it back so the first grab returns it, unless a newer one arrived
	select {
	case s.frames <- first:
	default:
	}
	return s, nil
}

// read decodes parts, keeping only the newest undelivered frame
func (s *mjpegSource) read(mr *multipart.Reader) {
	defer close(s.done)
	for {
		part, err := mr.NextPart()
		if err != nil {
			if err != io.EOF {
				s.log.Debug().Err(err).Msg("Stream closed")
			}
			s.ended.Store(true)
			return
		}

		data, err := io.ReadAll(io.LimitReader(part, maxPartSize))
		part.Close()
		if err != nil {
			s.ended.Store(true)
			return
		}

		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			s.log.Debug().Err(err).Msg("Skipping undecodable part")
			continue
		}

		// Replace a stale frame nobody grabbed
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- img:
		default:
		}
	}
}

func (s *mjpegSource) Name() string {
	return "mjpeg"
}

func (s *mjpegSource) Descriptor() video.StreamDescriptor {
	return s.desc
}

func (s *mjpegSource) GrabNext(buf []byte, wait bool) bool {
	var img image.Image
	if wait {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		select {
		case img = <-s.frames:
		case <-s.done:
			// A frame may have been queued just before the stream ended
			select {
			case img = <-s.frames:
			default:
				return false
			}
		case <-timer.C:
			return false
		}
	} else {
		select {
		case img = <-s.frames:
		default:
			return false
		}
	}

	b := img.Bounds()
	if b.Dx() != s.desc.Width || b.Dy() != s.desc.Height {
		s.log.Warn().
			Str("frame", b.String()).
			Str("stream", s.desc.String()).
			Msg("Dropping frame with changed geometry")
		return false
	}
	return video.FromImage(img, s.desc, buf) == nil
}

// EndOfStream reports whether the server closed the stream and every
// received frame was consumed
func (s *mjpegSource) EndOfStream() bool {
	return s.ended.Load() && len(s.frames) == 0
}

func (s *mjpegSource) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.body.Close()
	<-s.done
	return err
}
