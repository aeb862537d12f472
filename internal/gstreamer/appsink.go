package gstreamer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// AppSink pulls raw frames out of a pipeline ending in an appsink
type AppSink struct {
	pipeline *gst.Pipeline
	appsink  *app.Sink
	desc     video.StreamDescriptor
	timeout  time.Duration

	mu      sync.Mutex
	pending []byte // first frame, pulled while negotiating geometry

	eos      atomic.Bool
	stopChan chan struct{}
	done     chan struct{}
	log      *zerolog.Logger
}

// NewAppSink launches "<launch> ! videoconvert ! video/x-raw,format=F ! appsink"
// and waits up to timeout for the first frame to learn the stream geometry
func NewAppSink(launch string, format video.PixelFormat, timeout time.Duration) (*AppSink, error) {
	ensureInit()

	capsFormat, err := CapsFormat(format)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("gstreamer")

	// Polling mode: emit-signals=false keeps callbacks out of cgo
	pipelineStr := fmt.Sprintf(
		"%s ! videoconvert ! video/x-raw,format=%s ! "+
			"appsink name=sink emit-signals=false max-buffers=2 drop=false",
		launch, capsFormat,
	)
	log.Debug().Str("pipeline", pipelineStr).Msg("Creating GStreamer pipeline")

	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	sinkElement, err := pipeline.GetElementByName("sink")
	if err != nil {
		return nil, fmt.Errorf("failed to get appsink: %w", err)
	}

	s := &AppSink{
		pipeline: pipeline,
		appsink:  app.SinkFromElement(sinkElement),
		timeout:  timeout,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		log:      log,
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	sample := s.appsink.TryPullSample(timeout)
	if sample == nil {
		cause := s.drainError()
		pipeline.SetState(gst.StateNull)
		if cause != nil {
			return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, cause)
		}
		return nil, fmt.Errorf("%w: no frame within %v", video.ErrDeviceUnavailable, timeout)
	}

	w, h, data, err := sampleFrame(sample)
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, err
	}
	s.desc = video.NewStreamDescriptor(w, h, format)
	s.pending = make([]byte, s.desc.SizeBytes)
	if !copyFrame(s.pending, data, s.desc) {
		s.pending = nil
	}

	go s.watchBus()

	log.Info().
		Str("stream", s.desc.String()).
		Msg("GStreamer pipeline started")

	return s, nil
}

// Descriptor returns the negotiated stream
func (s *AppSink) Descriptor() video.StreamDescriptor {
	return s.desc
}

// Pull copies the next frame into buf. Without wait it only takes a frame
// that is already queued.
func (s *AppSink) Pull(buf []byte, wait bool) bool {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	if pending != nil {
		copy(buf, pending)
		return true
	}

	timeout := time.Duration(0)
	if wait {
		timeout = s.timeout
	}
	sample := s.appsink.TryPullSample(timeout)
	if sample == nil {
		return false
	}

	w, h, data, err := sampleFrame(sample)
	if err != nil {
		s.log.Debug().Err(err).Msg("Dropping unreadable sample")
		return false
	}
	if w != s.desc.Width || h != s.desc.Height {
		s.log.Warn().
			Int("width", w).
			Int("height", h).
			Str("stream", s.desc.String()).
			Msg("Dropping frame with changed geometry")
		return false
	}
	return copyFrame(buf, data, s.desc)
}

// EndOfStream reports whether the pipeline posted EOS or an error
func (s *AppSink) EndOfStream() bool {
	return s.eos.Load()
}

// Close stops the pipeline
func (s *AppSink) Close() error {
	select {
	case <-s.stopChan:
		return nil
	default:
		close(s.stopChan)
	}
	<-s.done

	s.pipeline.SetState(gst.StateNull)
	s.log.Info().Msg("GStreamer pipeline stopped")
	return nil
}

// watchBus records end of stream and logs pipeline errors
func (s *AppSink) watchBus() {
	defer close(s.done)
	bus := s.pipeline.GetPipelineBus()
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			s.log.Info().Msg("End of stream")
			s.eos.Store(true)
		case gst.MessageError:
			gerr := msg.ParseError()
			s.log.Error().
				Str("error", gerr.Error()).
				Str("debug", gerr.DebugString()).
				Msg("Pipeline error")
			s.eos.Store(true)
		}
	}
}

// drainError returns the first error message already posted on the bus
func (s *AppSink) drainError() error {
	bus := s.pipeline.GetPipelineBus()
	for {
		msg := bus.TimedPop(10 * time.Millisecond)
		if msg == nil {
			return nil
		}
		if msg.Type() == gst.MessageError {
			gerr := msg.ParseError()
			return fmt.Errorf("%s", gerr.Error())
		}
	}
}

// sampleFrame extracts the geometry and mapped bytes of a sample. The data is
// only valid until the next pull.
func sampleFrame(sample *gst.Sample) (int, int, []byte, error) {
	buffer := sample.GetBuffer()
	if buffer == nil {
		return 0, 0, nil, fmt.Errorf("sample has no buffer")
	}

	caps := sample.GetCaps()
	if caps == nil {
		return 0, 0, nil, fmt.Errorf("sample has no caps")
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return 0, 0, nil, fmt.Errorf("caps have no structure")
	}

	width, _ := structure.GetValue("width")
	height, _ := structure.GetValue("height")
	w, ok := width.(int)
	if !ok {
		return 0, 0, nil, fmt.Errorf("caps width is %T", width)
	}
	h, ok := height.(int)
	if !ok {
		return 0, 0, nil, fmt.Errorf("caps height is %T", height)
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return 0, 0, nil, fmt.Errorf("failed to map buffer")
	}
	data := append([]byte(nil), mapInfo.Bytes()...)
	buffer.Unmap()

	return w, h, data, nil
}
