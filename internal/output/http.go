package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// httpSink serves the recording as an MJPEG stream that browsers and
// mjpeg:// sources can open
type httpSink struct {
	stream
	path     string
	quality  int
	listener net.Listener
	server   *http.Server
	hub      *Broadcaster
	log      *zerolog.Logger
}

func openHTTP(u video.URI) (*httpSink, error) {
	addr := u.Get("addr", ":8090")
	quality, err := jpegQuality(u)
	if err != nil {
		return nil, err
	}
	path := "/" + strings.Trim(u.Path, "/")
	if path == "/" {
		path = "/stream"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
	}

	s := &httpSink{
		path:     path,
		quality:  quality,
		listener: listener,
		hub:      NewBroadcaster(path),
		log:      logger.WithComponent("http-sink"),
	}

	router := mux.NewRouter()
	router.Handle(path, s.hub).Methods("GET")
	router.HandleFunc("/", ViewerHandler(path, "SimpleRecord")).Methods("GET")
	s.server = &http.Server{Handler: router}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	s.log.Info().Str("url", "http://"+s.Addr()+path).Msg("Serving MJPEG stream")
	return s, nil
}

// Addr returns the address the server listens on
func (s *httpSink) Addr() string {
	return s.listener.Addr().String()
}

func (s *httpSink) Name() string {
	return "http"
}

func (s *httpSink) AddStream(width, height int, format video.PixelFormat) error {
	return s.add(width, height, format)
}

func (s *httpSink) WriteFrame(buf []byte, width, height int, format video.PixelFormat) error {
	if _, err := s.accept(buf, width, height, format); err != nil {
		return err
	}
	// Clients hold on to published frames, so every frame gets its own buffer
	var b bytes.Buffer
	if err := encodeJPEG(&b, buf, s.inputDesc(), s.format, s.quality); err != nil {
		return err
	}
	s.hub.Publish(b.Bytes())
	s.frames++
	return nil
}

func (s *httpSink) Close() error {
	s.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
