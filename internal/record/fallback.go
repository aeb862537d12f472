package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
)

// ErrCandidatesExhausted is returned when no candidate source could be opened
var ErrCandidatesExhausted = errors.New("no candidate source could be opened")

// RunFunc runs one session, normally Session.Run
type RunFunc func(ctx context.Context, sourceURI, sinkURI string) error

// Attempt records one candidate that was tried
type Attempt struct {
	URI string `json:"uri"`
	Err error  `json:"-"`
}

// Outcome is the result of RunCandidates
type Outcome struct {
	// Opened is the candidate that got past opening, empty when none did
	Opened   string
	Attempts []Attempt
	// Err is nil after a clean run, the fatal error of the opened candidate,
	// or wraps ErrCandidatesExhausted
	Err error
}

// RunCandidates tries each source in order. A candidate failing with an
// open error is recorded and the next one is tried; the first candidate that
// opens ends the search, whatever its run returns.
func RunCandidates(ctx context.Context, candidates []string, sinkURI string, run RunFunc) Outcome {
	log := logger.WithComponent("record")
	var out Outcome

	for _, uri := range candidates {
		if err := ctx.Err(); err != nil {
			out.Err = err
			return out
		}

		err := run(ctx, uri, sinkURI)
		out.Attempts = append(out.Attempts, Attempt{URI: uri, Err: err})

		if video.IsOpenFailure(err) {
			log.Info().Err(err).Str("uri", uri).Msg("Candidate failed to open, trying next")
			continue
		}

		out.Opened = uri
		out.Err = err
		return out
	}

	out.Err = fmt.Errorf("%w: tried %d", ErrCandidatesExhausted, len(out.Attempts))
	return out
}
