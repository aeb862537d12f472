package pipewire

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/godbus/dbus/v5"
)

// Portal handles xdg-desktop-portal screen sharing via D-Bus
type Portal struct {
	conn          *dbus.Conn
	sessionHandle dbus.ObjectPath
	nodeID        uint32
	mu            sync.Mutex
	restoreToken  string
	tokenPath     string
	requests      int
}

// Portal D-Bus constants
const (
	portalService   = "org.freedesktop.portal.Desktop"
	portalPath      = "/org/freedesktop/portal/desktop"
	screenCastIface = "org.freedesktop.portal.ScreenCast"
	requestIface    = "org.freedesktop.portal.Request"
)

// Source types for SelectSources
const (
	SourceTypeMonitor = 1 << 0
	SourceTypeWindow  = 1 << 1
	SourceTypeVirtual = 1 << 2
)

// Cursor modes for SelectSources
const (
	CursorModeHidden   = 1 << 0
	CursorModeEmbedded = 1 << 1
	CursorModeMetadata = 1 << 2
)

// Persist modes for SelectSources
const (
	PersistModeNone        = 0
	PersistModeApplication = 1
	PersistModeSession     = 2
)

// ShareOptions selects what the portal dialog offers
type ShareOptions struct {
	SourceTypes uint32
	CursorMode  uint32
	PersistMode uint32
}

// DefaultShareOptions shares one monitor with an embedded cursor
func DefaultShareOptions() ShareOptions {
	return ShareOptions{
		SourceTypes: SourceTypeMonitor,
		CursorMode:  CursorModeEmbedded,
		PersistMode: PersistModeApplication,
	}
}

// NewPortal connects to the session bus
func NewPortal() (*Portal, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = os.Getenv("HOME")
	}

	p := &Portal{
		conn:      conn,
		tokenPath: filepath.Join(configDir, "simplerecord", "portal_token"),
	}
	p.loadRestoreToken()

	return p, nil
}

// Close ends the portal session and the bus connection
func (p *Portal) Close() error {
	if p.sessionHandle != "" {
		p.conn.Object(portalService, p.sessionHandle).Call(
			"org.freedesktop.portal.Session.Close", 0,
		)
	}
	return p.conn.Close()
}

// NodeID returns the PipeWire node carrying the shared stream
func (p *Portal) NodeID() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nodeID
}

// StartScreenShare runs CreateSession, SelectSources and Start
func (p *Portal) StartScreenShare(opts ShareOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := logger.WithComponent("portal")

	results, err := p.request("CreateSession", 30*time.Second, map[string]dbus.Variant{
		"session_handle_token": dbus.MakeVariant(fmt.Sprintf("simplerecord%d", os.Getpid())),
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	sessionHandle, err := objectPath(results["session_handle"])
	if err != nil {
		return err
	}
	p.sessionHandle = sessionHandle
	log.Debug().Str("session", string(sessionHandle)).Msg("Created portal session")

	selectOpts := map[string]dbus.Variant{
		"types":        dbus.MakeVariant(opts.SourceTypes),
		"multiple":     dbus.MakeVariant(false),
		"cursor_mode":  dbus.MakeVariant(opts.CursorMode),
		"persist_mode": dbus.MakeVariant(opts.PersistMode),
	}
	if p.restoreToken != "" && opts.PersistMode != PersistModeNone {
		selectOpts["restore_token"] = dbus.MakeVariant(p.restoreToken)
		log.Debug().Msg("Using saved restore token")
	}
	// The user picks a source in a dialog here
	if _, err := p.request("SelectSources", 2*time.Minute, selectOpts, sessionHandle); err != nil {
		return fmt.Errorf("failed to select sources: %w", err)
	}

	results, err = p.request("Start", 30*time.Second, map[string]dbus.Variant{}, sessionHandle, "")
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	if v, ok := results["restore_token"]; ok {
		if token, ok := v.Value().(string); ok {
			p.restoreToken = token
			p.saveRestoreToken()
		}
	}

	nodeID, err := firstNodeID(results["streams"])
	if err != nil {
		return err
	}
	p.nodeID = nodeID
	log.Info().Uint32("node_id", nodeID).Msg("Screen sharing started")

	return nil
}

// request calls a ScreenCast method and waits for its Request.Response
// signal. Positional args precede the options map.
func (p *Portal) request(method string, timeout time.Duration, options map[string]dbus.Variant, args ...interface{}) (map[string]dbus.Variant, error) {
	log := logger.WithComponent("portal")

	p.requests++
	options["handle_token"] = dbus.MakeVariant(fmt.Sprintf("simplerecord%d_%d", os.Getpid(), p.requests))

	// Subscribe before calling so the response cannot be missed
	responseChan := make(chan *dbus.Signal, 10)
	matchRule := fmt.Sprintf("type='signal',interface='%s',member='Response'", requestIface)
	if err := p.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule).Err; err != nil {
		log.Warn().Err(err).Msg("Failed to add match rule")
	}
	p.conn.Signal(responseChan)
	defer p.conn.RemoveSignal(responseChan)

	var requestPath dbus.ObjectPath
	callArgs := append(args, options)
	obj := p.conn.Object(portalService, portalPath)
	if err := obj.Call(screenCastIface+"."+method, 0, callArgs...).Store(&requestPath); err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	log.Info().
		Str("method", method).
		Str("request_path", string(requestPath)).
		Msg("Waiting for portal response")

	deadline := time.After(timeout)
	for {
		select {
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for %s response", method)
		case sig := <-responseChan:
			if sig.Path != requestPath || sig.Name != requestIface+".Response" {
				continue
			}
			if len(sig.Body) < 2 {
				return nil, fmt.Errorf("invalid %s response", method)
			}
			code, _ := sig.Body[0].(uint32)
			if code != 0 {
				return nil, fmt.Errorf("%s denied (code %d)", method, code)
			}
			results, _ := sig.Body[1].(map[string]dbus.Variant)
			return results, nil
		}
	}
}

func objectPath(v dbus.Variant) (dbus.ObjectPath, error) {
	switch s := v.Value().(type) {
	case dbus.ObjectPath:
		return s, nil
	case string:
		return dbus.ObjectPath(s), nil
	}
	return "", fmt.Errorf("unexpected session_handle type: %T", v.Value())
}

// firstNodeID extracts the node of the first a(ua{sv}) stream entry
func firstNodeID(v dbus.Variant) (uint32, error) {
	switch streams := v.Value().(type) {
	case [][]interface{}:
		if len(streams) > 0 && len(streams[0]) > 0 {
			if nodeID, ok := streams[0][0].(uint32); ok {
				return nodeID, nil
			}
		}
	case []interface{}:
		if len(streams) > 0 {
			if stream, ok := streams[0].([]interface{}); ok && len(stream) > 0 {
				if nodeID, ok := stream[0].(uint32); ok {
					return nodeID, nil
				}
			}
		}
	}
	return 0, fmt.Errorf("no streams in response (%T)", v.Value())
}

func (p *Portal) loadRestoreToken() {
	data, err := os.ReadFile(p.tokenPath)
	if err != nil {
		return
	}

	var token struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &token); err != nil {
		return
	}
	p.restoreToken = token.Token
}

func (p *Portal) saveRestoreToken() {
	if p.restoreToken == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(p.tokenPath), 0755); err != nil {
		return
	}

	data, err := json.Marshal(struct {
		Token string `json:"token"`
	}{Token: p.restoreToken})
	if err != nil {
		return
	}

	if err := os.WriteFile(p.tokenPath, data, 0600); err != nil {
		logger.WithComponent("portal").Debug().Err(err).Msg("Failed to save restore token")
	}
}
