// Package ffmpeg runs ffmpeg and ffprobe as subprocesses that exchange raw
// video frames over pipes.
package ffmpeg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotStarted is returned when stopping a process that never started
var ErrNotStarted = errors.New("process not started")

// Process manages one subprocess
type Process struct {
	cmd     *exec.Cmd
	timeout time.Duration
	log     *zerolog.Logger

	stdin  io.WriteCloser
	stdout *os.File

	mu      sync.Mutex
	started bool
	done    chan struct{}
	err     error
}

// NewProcess wraps cmd. Pipes must be requested before Start.
func NewProcess(cmd *exec.Cmd) *Process {
	return &Process{
		cmd:     cmd,
		timeout: time.Second,
		done:    make(chan struct{}),
	}
}

// SetTimeout sets how long Stop waits after an interrupt before killing
func (p *Process) SetTimeout(timeout time.Duration) {
	p.timeout = timeout
}

// SetLogger logs every stderr line of the process at debug level
func (p *Process) SetLogger(l *zerolog.Logger) {
	p.log = l
}

// StdinPipe returns a pipe connected to the process stdin
func (p *Process) StdinPipe() (io.WriteCloser, error) {
	w, err := p.cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	p.stdin = w
	return w, nil
}

// StdoutPipe returns the read end of the process stdout. It stays readable
// after the process exits until everything written has been consumed.
func (p *Process) StdoutPipe() (io.ReadCloser, error) {
	if p.cmd.Stdout != nil {
		return nil, errors.New("stdout already set")
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	p.cmd.Stdout = w
	p.stdout = w
	return r, nil
}

// Start launches the process without waiting for it
func (p *Process) Start() error {
	if p.log != nil {
		pipe, err := p.cmd.StderrPipe()
		if err != nil {
			return err
		}
		scanner := bufio.NewScanner(pipe)
		log := p.log
		go func() {
			for scanner.Scan() {
				log.Debug().Str("stderr", scanner.Text()).Msg("ffmpeg")
			}
		}()
	}

	if err := p.cmd.Start(); err != nil {
		return err
	}
	// The child owns its copy of the write end now
	if p.stdout != nil {
		p.stdout.Close()
	}

	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	go func() {
		err := p.cmd.Wait()
		// FFmpeg returns 255 when it exits on an interrupt
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 255 {
			err = nil
		}
		p.err = err
		close(p.done)
	}()

	return nil
}

// Done is closed once the process has exited
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has exited
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the process exits and returns its exit error
func (p *Process) Wait() error {
	if !p.isStarted() {
		return ErrNotStarted
	}
	<-p.done
	return p.err
}

// Finish closes stdin so the process can flush and exit on its own. After
// grace it is stopped.
func (p *Process) Finish(grace time.Duration) error {
	if !p.isStarted() {
		return ErrNotStarted
	}
	if p.stdin != nil {
		p.stdin.Close()
	}
	select {
	case <-p.done:
		return p.err
	case <-time.After(grace):
		return p.Stop()
	}
}

// Stop interrupts the process, killing it if it has not exited within the
// timeout. An exit caused by the signal is not an error.
func (p *Process) Stop() error {
	if !p.isStarted() {
		return ErrNotStarted
	}
	if p.Exited() {
		return p.err
	}

	p.cmd.Process.Signal(os.Interrupt) //nolint:errcheck

	select {
	case <-p.done:
	case <-time.After(p.timeout):
		p.cmd.Process.Kill() //nolint:errcheck
		<-p.done
	}
	return nil
}

func (p *Process) isStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// String renders the command line for logs
func (p *Process) String() string {
	return fmt.Sprint(p.cmd.Args)
}
