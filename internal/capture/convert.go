package capture

import (
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
)

// convertSource rewrites the pixel format of a nested source
type convertSource struct {
	inner   video.Source
	inDesc  video.StreamDescriptor
	desc    video.StreamDescriptor
	scratch *video.FrameBuffer
}

func openConvert(u video.URI, opts Options) (video.Source, error) {
	format, err := u.Format("fmt", video.FormatRGB24)
	if err != nil {
		return nil, err
	}

	nested, err := video.ParseURI(u.Path)
	if err != nil {
		return nil, err
	}
	inner, err := open(nested, opts)
	if err != nil {
		return nil, err
	}

	inDesc := inner.Descriptor()
	s := &convertSource{
		inner:   inner,
		inDesc:  inDesc,
		desc:    inDesc.WithFormat(format),
		scratch: video.NewFrameBuffer(inDesc),
	}

	logger.WithComponent("capture").Debug().
		Str("from", inDesc.String()).
		Str("to", s.desc.String()).
		Msg("Converting source")

	return s, nil
}

func (s *convertSource) Name() string {
	return "convert(" + s.inner.Name() + ")"
}

func (s *convertSource) Descriptor() video.StreamDescriptor {
	return s.desc
}

func (s *convertSource) GrabNext(buf []byte, wait bool) bool {
	if s.inDesc.Format == s.desc.Format {
		return s.inner.GrabNext(buf, wait)
	}
	if !s.inner.GrabNext(s.scratch.Bytes(), wait) {
		return false
	}
	if err := video.Convert(s.scratch.Bytes(), s.inDesc, buf, s.desc); err != nil {
		logger.WithComponent("capture").Debug().Err(err).Msg("Conversion failed")
		return false
	}
	return true
}

func (s *convertSource) EndOfStream() bool {
	if e, ok := s.inner.(video.Ender); ok {
		return e.EndOfStream()
	}
	return false
}

func (s *convertSource) Close() error {
	s.scratch.Release()
	return s.inner.Close()
}
