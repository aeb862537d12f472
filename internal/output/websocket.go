package output

import (
	"bytes"
	"fmt"
	"net/url"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// wsSink pushes every frame as a JPEG binary message to a websocket server
type wsSink struct {
	stream
	url     string
	quality int
	timeout time.Duration
	conn    *websocket.Conn
	jpeg    bytes.Buffer
	log     *zerolog.Logger
}

func openWebSocket(u video.URI, opts Options) (*wsSink, error) {
	target := u.Scheme + "://" + u.Path
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("%w: bad websocket url %q", video.ErrInvalidURI, target)
	}
	quality, err := jpegQuality(u)
	if err != nil {
		return nil, err
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = opts.Timeout
	conn, _, err := dialer.Dial(parsed.String(), nil) //nolint:bodyclose
	if err != nil {
		return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
	}

	log := logger.WithComponent("ws-sink")
	log.Info().Str("url", parsed.String()).Msg("Connected to websocket server")

	return &wsSink{
		url:     parsed.String(),
		quality: quality,
		timeout: opts.Timeout,
		conn:    conn,
		log:     log,
	}, nil
}

func (s *wsSink) Name() string {
	return "ws"
}

func (s *wsSink) AddStream(width, height int, format video.PixelFormat) error {
	return s.add(width, height, format)
}

func (s *wsSink) WriteFrame(buf []byte, width, height int, format video.PixelFormat) error {
	if _, err := s.accept(buf, width, height, format); err != nil {
		return err
	}
	s.jpeg.Reset()
	if err := encodeJPEG(&s.jpeg, buf, s.inputDesc(), s.format, s.quality); err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.timeout)) //nolint:errcheck
	if err := s.conn.WriteMessage(websocket.BinaryMessage, s.jpeg.Bytes()); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	s.frames++
	if s.frames%300 == 0 {
		s.log.Debug().Uint64("frames", s.frames).Int("last_size", s.jpeg.Len()).Msg("Frames sent")
	}
	return nil
}

// Close sends a close frame before dropping the connection
func (s *wsSink) Close() error {
	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err != nil {
		s.log.Debug().Err(err).Msg("Failed to send close message")
	}
	s.log.Info().Uint64("frames", s.frames).Str("url", s.url).Msg("Websocket closed")
	return s.conn.Close()
}
