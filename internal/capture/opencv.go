//go:build gocv

package capture

import (
	"fmt"
	"strconv"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"gocv.io/x/gocv"
)

// opencvSource reads BGR frames from an OpenCV VideoCapture
type opencvSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	bgr     video.StreamDescriptor
	desc    video.StreamDescriptor
}

func openOpenCV(u video.URI, opts Options) (video.Source, error) {
	var device interface{} = u.Path
	if id, err := strconv.Atoi(u.Path); err == nil {
		device = id
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
	}

	if w, h, ok, err := u.Size("size"); err != nil {
		capture.Close()
		return nil, err
	} else if ok {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(w))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(h))
	}

	format, err := u.Format("fmt", video.FormatRGB24)
	if err != nil {
		capture.Close()
		return nil, err
	}

	w := int(capture.Get(gocv.VideoCaptureFrameWidth))
	h := int(capture.Get(gocv.VideoCaptureFrameHeight))
	if w <= 0 || h <= 0 {
		capture.Close()
		return nil, fmt.Errorf("%w: capture reports no frame size", video.ErrDeviceUnavailable)
	}

	logger.WithComponent("opencv").Info().
		Interface("device", device).
		Float64("fps", capture.Get(gocv.VideoCaptureFPS)).
		Msg("VideoCapture opened")

	return &opencvSource{
		capture: capture,
		mat:     gocv.NewMat(),
		bgr:     video.NewStreamDescriptor(w, h, video.FormatBGR24),
		desc:    video.NewStreamDescriptor(w, h, format),
	}, nil
}

func (s *opencvSource) Name() string {
	return "opencv"
}

func (s *opencvSource) Descriptor() video.StreamDescriptor {
	return s.desc
}

func (s *opencvSource) GrabNext(buf []byte, wait bool) bool {
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return false
	}
	if s.mat.Cols() != s.bgr.Width || s.mat.Rows() != s.bgr.Height || s.mat.Type() != gocv.MatTypeCV8UC3 {
		return false
	}
	return video.Convert(s.mat.ToBytes(), s.bgr, buf, s.desc) == nil
}

func (s *opencvSource) Close() error {
	s.mat.Close()
	return s.capture.Close()
}
