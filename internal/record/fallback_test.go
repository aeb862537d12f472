package record

import (
	"context"
	"errors"
	"testing"

	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRun returns the error scripted for each uri and records the calls
type scriptedRun struct {
	errs  map[string]error
	calls []string
}

func (r *scriptedRun) run(ctx context.Context, sourceURI, sinkURI string) error {
	r.calls = append(r.calls, sourceURI)
	return r.errs[sourceURI]
}

func TestRunCandidatesStopsAtFirstOpened(t *testing.T) {
	r := &scriptedRun{errs: map[string]error{
		"A": openError(video.RoleSource, "A"),
		"B": openError(video.RoleSource, "B"),
	}}

	out := RunCandidates(context.Background(), []string{"A", "B", "C", "D"}, "null://", r.run)
	require.NoError(t, out.Err)
	assert.Equal(t, "C", out.Opened)
	assert.Equal(t, []string{"A", "B", "C"}, r.calls)
	require.Len(t, out.Attempts, 3)
	assert.True(t, video.IsOpenFailure(out.Attempts[0].Err))
	assert.NoError(t, out.Attempts[2].Err)
}

func TestRunCandidatesExhausted(t *testing.T) {
	r := &scriptedRun{errs: map[string]error{
		"A": openError(video.RoleSource, "A"),
		"B": openError(video.RoleSink, "B"),
	}}

	out := RunCandidates(context.Background(), []string{"A", "B"}, "null://", r.run)
	assert.ErrorIs(t, out.Err, ErrCandidatesExhausted)
	assert.Empty(t, out.Opened)
	assert.Equal(t, []string{"A", "B"}, r.calls)
}

func TestRunCandidatesFatalErrorStops(t *testing.T) {
	fatal := errors.New("display unavailable")
	r := &scriptedRun{errs: map[string]error{
		"A": openError(video.RoleSource, "A"),
		"B": fatal,
	}}

	out := RunCandidates(context.Background(), []string{"A", "B", "C"}, "null://", r.run)
	assert.ErrorIs(t, out.Err, fatal)
	assert.Equal(t, "B", out.Opened)
	assert.Equal(t, []string{"A", "B"}, r.calls)
}

func TestRunCandidatesEmpty(t *testing.T) {
	out := RunCandidates(context.Background(), nil, "null://", (&scriptedRun{}).run)
	assert.ErrorIs(t, out.Err, ErrCandidatesExhausted)
	assert.Empty(t, out.Attempts)
}

func TestRunCandidatesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &scriptedRun{}

	out := RunCandidates(ctx, []string{"A"}, "null://", r.run)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Empty(t, r.calls)
}

func TestRunCandidatesWithSessions(t *testing.T) {
	f := newFakeEndpoints()
	openers := f.openers()
	openers.Source = func(uri string) (video.Source, error) {
		if uri != "good" {
			return nil, errors.New("missing")
		}
		return f.src, nil
	}
	s := NewSession(openers, SessionConfig{})

	out := RunCandidates(context.Background(), []string{"bad", "good"}, "null://", s.Run)
	require.NoError(t, out.Err)
	assert.Equal(t, "good", out.Opened)
	assert.Len(t, out.Attempts, 2)
	assert.Equal(t, "good", s.Info().SourceURI)
}
