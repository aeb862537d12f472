package output

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/rs/zerolog"
)

// Broadcaster fans JPEG frames out to multipart/x-mixed-replace HTTP clients.
// It backs the http sink and the API preview.
type Broadcaster struct {
	name string

	mu      sync.RWMutex
	running bool
	clients map[chan []byte]struct{}

	frameCount atomic.Uint64
	lastUpdate atomic.Int64
	startTime  time.Time
	log        *zerolog.Logger
}

// NewBroadcaster creates a running broadcaster; name only appears in logs
func NewBroadcaster(name string) *Broadcaster {
	return &Broadcaster{
		name:      name,
		running:   true,
		clients:   make(map[chan []byte]struct{}),
		startTime: time.Now(),
		log:       logger.WithComponent("mjpeg"),
	}
}

// Publish sends a frame to all connected clients. jpegData must not be
// modified afterwards. Slow clients skip frames.
func (b *Broadcaster) Publish(jpegData []byte) {
	b.frameCount.Add(1)
	b.lastUpdate.Store(time.Now().UnixNano())

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- jpegData:
		default:
		}
	}
}

// Clients returns the number of connected clients
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Frames returns the number of published frames
func (b *Broadcaster) Frames() uint64 {
	return b.frameCount.Load()
}

// LastUpdate returns when the last frame was published
func (b *Broadcaster) LastUpdate() time.Time {
	ns := b.lastUpdate.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Close disconnects every client and refuses new ones
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	b.running = false
	for ch := range b.clients {
		close(ch)
	}
	b.clients = make(map[chan []byte]struct{})

	b.log.Info().
		Str("name", b.name).
		Uint64("frames", b.Frames()).
		Dur("uptime", time.Since(b.startTime)).
		Msg("Stream stopped")
}

func (b *Broadcaster) register() (chan []byte, int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil, 0, false
	}
	ch := make(chan []byte, 2)
	b.clients[ch] = struct{}{}
	return ch, len(b.clients), true
}

func (b *Broadcaster) unregister(ch chan []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, ch)
	return len(b.clients)
}

// ServeHTTP streams frames until the client goes away or the broadcaster
// closes
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	frameChan, clientCount, ok := b.register()
	if !ok {
		http.Error(w, "stream stopped", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	b.log.Info().Str("name", b.name).Int("clients", clientCount).Msg("Client connected")
	defer func() {
		remaining := b.unregister(frameChan)
		b.log.Info().Str("name", b.name).Int("clients", remaining).Msg("Client disconnected")
	}()

	for {
		var jpegData []byte
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-frameChan:
			if !ok {
				return
			}
			jpegData = data
		}

		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
			return
		}
		if _, err := w.Write(jpegData); err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

// ViewerHandler serves a bare page showing the stream at streamPath
func ViewerHandler(streamPath, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #000;
            overflow: hidden;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
        }
        img {
            width: 100vw;
            height: 100vh;
            object-fit: contain;
            display: block;
            background: #000;
        }
    </style>
</head>
<body>
    <img src="%s" alt="%s">
</body>
</html>`, title, streamPath, title)
	}
}
