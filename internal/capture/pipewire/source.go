// Package pipewire captures the desktop on Wayland through the ScreenCast
// portal and a pipewiresrc pipeline.
package pipewire

import (
	"fmt"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/gstreamer"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
)

// Source streams a portal-shared monitor or window
type Source struct {
	portal   *Portal
	pipeline *gstreamer.AppSink
}

// Open asks the portal for a stream and starts pulling frames from its node
func Open(opts ShareOptions, format video.PixelFormat, timeout time.Duration) (*Source, error) {
	log := logger.WithComponent("pipewire")

	portal, err := NewPortal()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
	}

	if err := portal.StartScreenShare(opts); err != nil {
		portal.Close()
		return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
	}

	nodeID := portal.NodeID()
	log.Info().Uint32("node_id", nodeID).Msg("Got PipeWire node ID")

	pipeline, err := gstreamer.NewAppSink(
		fmt.Sprintf("pipewiresrc path=%d do-timestamp=true", nodeID),
		format, timeout,
	)
	if err != nil {
		portal.Close()
		return nil, err
	}

	return &Source{portal: portal, pipeline: pipeline}, nil
}

// Name returns the backend name
func (s *Source) Name() string {
	return "pipewire"
}

// Descriptor returns the negotiated stream
func (s *Source) Descriptor() video.StreamDescriptor {
	return s.pipeline.Descriptor()
}

// GrabNext pulls the next frame from the pipeline
func (s *Source) GrabNext(buf []byte, wait bool) bool {
	return s.pipeline.Pull(buf, wait)
}

// EndOfStream reports whether the compositor ended the share
func (s *Source) EndOfStream() bool {
	return s.pipeline.EndOfStream()
}

// Close stops the pipeline and the portal session
func (s *Source) Close() error {
	perr := s.pipeline.Close()
	if err := s.portal.Close(); err != nil {
		return err
	}
	return perr
}
