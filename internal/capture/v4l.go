package capture

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blackjack/webcam"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/rs/zerolog"
)

// V4L2 fourcc codes
const (
	fourccYUYV webcam.PixelFormat = 0x56595559
	fourccMJPG webcam.PixelFormat = 0x47504A4D
	fourccGREY webcam.PixelFormat = 0x59455247
	fourccRGB3 webcam.PixelFormat = 0x33424752
	fourccBGR3 webcam.PixelFormat = 0x33524742
	fourccYU12 webcam.PixelFormat = 0x32315559
)

// preferred capture formats, most useful first
var v4lPreference = []webcam.PixelFormat{fourccYUYV, fourccMJPG, fourccRGB3, fourccBGR3, fourccYU12, fourccGREY}

// rawFormat maps an uncompressed fourcc to the matching pixel format
func rawFormat(f webcam.PixelFormat) (video.PixelFormat, bool) {
	switch f {
	case fourccYUYV:
		return video.FormatYUYV422, true
	case fourccGREY:
		return video.FormatGray8, true
	case fourccRGB3:
		return video.FormatRGB24, true
	case fourccBGR3:
		return video.FormatBGR24, true
	case fourccYU12:
		return video.FormatYUV420P, true
	}
	return video.FormatUnknown, false
}

// fourccFor maps a requested format name to a fourcc
func fourccFor(name string) (webcam.PixelFormat, error) {
	switch strings.ToUpper(name) {
	case "MJPG", "MJPEG":
		return fourccMJPG, nil
	}
	f, err := video.ParsePixelFormat(name)
	if err != nil {
		return 0, err
	}
	for _, fc := range v4lPreference {
		if pf, ok := rawFormat(fc); ok && pf == f {
			return fc, nil
		}
	}
	return 0, fmt.Errorf("no V4L2 fourcc for %s", f)
}

// fourCC renders a fourcc as text
func fourCC(f webcam.PixelFormat) string {
	b := []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	return strings.TrimRight(string(b), "\x00 ")
}

// timeoutSeconds converts the capture timeout to the whole seconds
// WaitForFrame takes, rounding up
func timeoutSeconds(o Options) uint32 {
	secs := uint32((o.Timeout + time.Second - 1) / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs
}

// v4lSource streams from a Video4Linux2 device
type v4lSource struct {
	cam     *webcam.Webcam
	path    string
	fourcc  webcam.PixelFormat
	desc    video.StreamDescriptor
	timeout uint32
	log     *zerolog.Logger
}

func openV4L(u video.URI, opts Options) (video.Source, error) {
	path := u.Path
	if path == "" {
		path = "/dev/video0"
	}
	log := logger.WithComponent("v4l")

	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", video.ErrDeviceUnavailable, path, err)
	}

	s, err := configureV4L(cam, u, opts)
	if err != nil {
		cam.Close()
		return nil, err
	}
	s.path = path
	s.log = log

	if err := cam.SetBufferCount(4); err != nil {
		log.Debug().Err(err).Msg("Failed to set buffer count")
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("%w: start streaming: %v", video.ErrDeviceUnavailable, err)
	}

	log.Info().
		Str("device", path).
		Str("fourcc", fourCC(s.fourcc)).
		Str("stream", s.desc.String()).
		Msg("Streaming started")

	return s, nil
}

func configureV4L(cam *webcam.Webcam, u video.URI, opts Options) (*v4lSource, error) {
	supported := cam.GetSupportedFormats()

	var fourcc webcam.PixelFormat
	if name := u.Get("fmt", ""); name != "" {
		fc, err := fourccFor(name)
		if err != nil {
			return nil, err
		}
		if _, ok := supported[fc]; !ok {
			return nil, fmt.Errorf("%w: device does not offer %s", video.ErrDeviceUnavailable, fourCC(fc))
		}
		fourcc = fc
	} else {
		for _, fc := range v4lPreference {
			if _, ok := supported[fc]; ok {
				fourcc = fc
				break
			}
		}
	}
	if fourcc == 0 {
		return nil, fmt.Errorf("%w: no usable pixel format", video.ErrDeviceUnavailable)
	}

	w, h, ok, err := u.Size("size")
	if err != nil {
		return nil, err
	}
	if !ok {
		w, h = 640, 480
	}

	got, gw, gh, err := cam.SetImageFormat(fourcc, uint32(w), uint32(h))
	if err != nil {
		return nil, fmt.Errorf("%w: set format: %v", video.ErrDeviceUnavailable, err)
	}

	format, raw := rawFormat(got)
	if !raw {
		if got != fourccMJPG {
			return nil, fmt.Errorf("%w: unsupported fourcc %s", video.ErrDeviceUnavailable, fourCC(got))
		}
		if format, err = u.Format("out", video.FormatRGB24); err != nil {
			return nil, err
		}
	}

	return &v4lSource{
		cam:     cam,
		fourcc:  got,
		desc:    video.NewStreamDescriptor(int(gw), int(gh), format),
		timeout: timeoutSeconds(opts),
	}, nil
}

func (s *v4lSource) Name() string {
	return "v4l"
}

func (s *v4lSource) Descriptor() video.StreamDescriptor {
	return s.desc
}

func (s *v4lSource) GrabNext(buf []byte, wait bool) bool {
	timeout := s.timeout
	if !wait {
		timeout = 0
	}
	err := s.cam.WaitForFrame(timeout)
	switch err.(type) {
	case nil:
	case *webcam.Timeout:
		return false
	default:
		s.log.Debug().Err(err).Msg("WaitForFrame failed")
		return false
	}

	frame, err := s.cam.ReadFrame()
	if err != nil || len(frame) == 0 {
		return false
	}

	if s.fourcc == fourccMJPG {
		img, err := jpeg.Decode(bytes.NewReader(frame))
		if err != nil {
			s.log.Debug().Err(err).Msg("Dropping undecodable MJPEG frame")
			return false
		}
		return video.FromImage(img, s.desc, buf) == nil
	}

	if len(frame) < s.desc.SizeBytes {
		return false
	}
	copy(buf[:s.desc.SizeBytes], frame)
	return true
}

func (s *v4lSource) Close() error {
	if err := s.cam.StopStreaming(); err != nil {
		s.log.Debug().Err(err).Msg("Failed to stop streaming")
	}
	return s.cam.Close()
}

// DeviceFormat is one pixel format offered by a device
type DeviceFormat struct {
	FourCC      string   `json:"fourcc" yaml:"fourcc"`
	Description string   `json:"description" yaml:"description"`
	Sizes       []string `json:"sizes" yaml:"sizes"`
}

// DeviceInfo describes a V4L2 device
type DeviceInfo struct {
	Path    string         `json:"path" yaml:"path"`
	Formats []DeviceFormat `json:"formats,omitempty" yaml:"formats,omitempty"`
	Error   string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// URI returns the source URI that opens this device
func (d DeviceInfo) URI() string {
	return "v4l://" + d.Path
}

// ListDevices enumerates /dev/video* and their formats
func ListDevices() ([]DeviceInfo, error) {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	devices := make([]DeviceInfo, 0, len(paths))
	for _, path := range paths {
		info := DeviceInfo{Path: path}

		cam, err := webcam.Open(path)
		if err != nil {
			info.Error = err.Error()
			devices = append(devices, info)
			continue
		}
		for fc, desc := range cam.GetSupportedFormats() {
			df := DeviceFormat{FourCC: fourCC(fc), Description: desc}
			for _, fs := range cam.GetSupportedFrameSizes(fc) {
				df.Sizes = append(df.Sizes, fs.GetString())
			}
			info.Formats = append(info.Formats, df)
		}
		cam.Close()

		sort.Slice(info.Formats, func(i, j int) bool {
			return info.Formats[i].FourCC < info.Formats[j].FourCC
		})
		devices = append(devices, info)
	}
	return devices, nil
}
