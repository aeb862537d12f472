package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
)

// Geometry is a window rectangle in root coordinates
type Geometry struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// WindowInfo describes a capturable top-level X11 window
type WindowInfo struct {
	ID       uint32   `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Class    string   `json:"class" yaml:"class"`
	PID      int      `json:"pid" yaml:"pid"`
	Geometry Geometry `json:"geometry" yaml:"geometry"`
}

// URI returns a source URI that captures this window
func (w WindowInfo) URI() string {
	return fmt.Sprintf("x11:[window=0x%x]//", w.ID)
}

// ListWindows lists the client windows of an X display ($DISPLAY when empty)
func ListWindows(display string) ([]WindowInfo, error) {
	conn, err := connectX11(display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	defer conn.Close()

	root := xproto.Setup(conn).DefaultScreen(conn).Root
	return listWindows(conn, root)
}

// MatchWindow picks a window by id (0x1c00003 or decimal), then by exact
// class, then by a case-insensitive substring of class or title
func MatchWindow(windows []WindowInfo, query string) (WindowInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return WindowInfo{}, fmt.Errorf("empty window query")
	}

	if id, err := strconv.ParseUint(query, 0, 32); err == nil {
		for _, w := range windows {
			if w.ID == uint32(id) {
				return w, nil
			}
		}
		return WindowInfo{}, fmt.Errorf("no window with id %s", query)
	}

	for _, w := range windows {
		if strings.EqualFold(w.Class, query) {
			return w, nil
		}
	}

	q := strings.ToLower(query)
	for _, w := range windows {
		if strings.Contains(strings.ToLower(w.Class), q) || strings.Contains(strings.ToLower(w.Title), q) {
			return w, nil
		}
	}
	return WindowInfo{}, fmt.Errorf("no window matches %q", query)
}

// listWindows prefers _NET_CLIENT_LIST and falls back to the root's children
func listWindows(conn *xgb.Conn, root xproto.Window) ([]WindowInfo, error) {
	log := logger.WithComponent("x11-windows")

	ids, err := clientList(conn, root)
	if err != nil || len(ids) == 0 {
		log.Debug().Err(err).Msg("_NET_CLIENT_LIST unavailable, using QueryTree")
		tree, err := xproto.QueryTree(conn, root).Reply()
		if err != nil {
			return nil, err
		}
		ids = tree.Children
	}

	a := newAtomCache(conn)
	windows := make([]WindowInfo, 0, len(ids))
	for _, id := range ids {
		info, ok := windowInfo(conn, a, id)
		// Skip windows without titles or class (usually not user windows)
		if !ok || (info.Title == "" && info.Class == "") {
			continue
		}
		windows = append(windows, info)
	}

	log.Debug().Int("count", len(windows)).Msg("Listed windows")
	return windows, nil
}

func clientList(conn *xgb.Conn, root xproto.Window) ([]xproto.Window, error) {
	atom, err := internAtom(conn, "_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}
	reply, err := xproto.GetProperty(conn, false, root, atom, xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, err
	}

	ids := make([]xproto.Window, 0, len(reply.Value)/4)
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		ids = append(ids, xproto.Window(le32(reply.Value[i:])))
	}
	return ids, nil
}

func windowInfo(conn *xgb.Conn, a *atomCache, win xproto.Window) (WindowInfo, bool) {
	info := WindowInfo{ID: uint32(win)}

	geom, err := xproto.GetGeometry(conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return info, false
	}
	info.Geometry = Geometry{
		X:      int(geom.X),
		Y:      int(geom.Y),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}

	if title, err := property(conn, win, a.get("_NET_WM_NAME")); err == nil {
		info.Title = title
	} else if title, err := property(conn, win, a.get("WM_NAME")); err == nil {
		info.Title = title
	}

	// WM_CLASS is "instance\0class\0"
	if raw, err := property(conn, win, a.get("WM_CLASS")); err == nil {
		parts := strings.Split(raw, "\x00")
		if len(parts) >= 2 && parts[1] != "" {
			info.Class = parts[1]
		} else if parts[0] != "" {
			info.Class = parts[0]
		}
	}

	if pidAtom := a.get("_NET_WM_PID"); pidAtom != 0 {
		reply, err := xproto.GetProperty(conn, false, win, pidAtom, xproto.AtomCardinal, 0, 1).Reply()
		if err == nil && len(reply.Value) >= 4 {
			info.PID = int(le32(reply.Value))
		}
	}

	return info, true
}

// atomCache interns each atom name once per listing
type atomCache struct {
	conn  *xgb.Conn
	atoms map[string]xproto.Atom
}

func newAtomCache(conn *xgb.Conn) *atomCache {
	return &atomCache{conn: conn, atoms: map[string]xproto.Atom{}}
}

func (c *atomCache) get(name string) xproto.Atom {
	if a, ok := c.atoms[name]; ok {
		return a
	}
	a, err := internAtom(c.conn, name)
	if err != nil {
		a = 0
	}
	c.atoms[name] = a
	return a
}

func internAtom(conn *xgb.Conn, name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

func property(conn *xgb.Conn, win xproto.Window, atom xproto.Atom) (string, error) {
	if atom == 0 {
		return "", fmt.Errorf("no atom")
	}
	reply, err := xproto.GetProperty(conn, false, win, atom, xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property")
	}
	return string(reply.Value), nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
