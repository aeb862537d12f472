//go:build !gocv

package display

import (
	"fmt"

	"github.com/bryanchriswhite/simplerecord/internal/video"
)

func openOpenCV(video.StreamDescriptor, Options) (Surface, error) {
	return nil, fmt.Errorf("opencv display requires building with -tags gocv")
}
