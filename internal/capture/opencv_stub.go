//go:build !gocv

package capture

import (
	"fmt"

	"github.com/bryanchriswhite/simplerecord/internal/video"
)

func openOpenCV(u video.URI, opts Options) (video.Source, error) {
	return nil, fmt.Errorf("%w: opencv support requires building with -tags gocv", video.ErrUnknownScheme)
}
