package gstreamer

import (
	"fmt"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// AppSrc pushes raw frames into a pipeline starting with an appsrc
type AppSrc struct {
	pipeline *gst.Pipeline
	appsrc   *app.Source
	desc     video.StreamDescriptor
	log      *zerolog.Logger
}

// NewAppSrc launches "appsrc ! videoconvert ! <launch>" for frames of desc
func NewAppSrc(launch string, desc video.StreamDescriptor, fps int) (*AppSrc, error) {
	ensureInit()

	if err := desc.Validate(); err != nil {
		return nil, err
	}
	capsFormat, err := CapsFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	if fps <= 0 {
		fps = 30
	}

	log := logger.WithComponent("gstreamer")

	pipelineStr := "appsrc name=src format=time is-live=true do-timestamp=true ! videoconvert ! " + launch
	log.Debug().Str("pipeline", pipelineStr).Msg("Creating GStreamer pipeline")

	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	srcElement, err := pipeline.GetElementByName("src")
	if err != nil {
		return nil, fmt.Errorf("failed to get appsrc: %w", err)
	}
	src := app.SrcFromElement(srcElement)
	src.SetCaps(gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=%s,width=%d,height=%d,framerate=%d/1",
		capsFormat, desc.Width, desc.Height, fps,
	)))

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	log.Info().Str("stream", desc.String()).Int("fps", fps).Msg("GStreamer pipeline started")

	return &AppSrc{
		pipeline: pipeline,
		appsrc:   src,
		desc:     desc,
		log:      log,
	}, nil
}

// Push copies one frame into a new GStreamer buffer
func (s *AppSrc) Push(buf []byte) error {
	if len(buf) < s.desc.SizeBytes {
		return fmt.Errorf("short frame: %d of %d bytes", len(buf), s.desc.SizeBytes)
	}
	data := append([]byte(nil), buf[:s.desc.SizeBytes]...)
	if ret := s.appsrc.PushBuffer(gst.NewBufferFromBytes(data)); ret != gst.FlowOK {
		return fmt.Errorf("push buffer: flow %v", ret)
	}
	return nil
}

// Close sends EOS and waits for the pipeline to drain so muxers can write
// their trailers
func (s *AppSrc) Close() error {
	s.appsrc.EndStream()

	var cause error
	bus := s.pipeline.GetPipelineBus()
	deadline := time.Now().Add(5 * time.Second)
wait:
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			break wait
		case gst.MessageError:
			gerr := msg.ParseError()
			cause = fmt.Errorf("pipeline error: %s", gerr.Error())
			break wait
		}
	}

	s.pipeline.SetState(gst.StateNull)
	s.log.Info().Msg("GStreamer pipeline stopped")
	return cause
}
