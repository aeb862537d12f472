package video

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// URI selects a backend and its options: scheme:[key=value,...]//path
type URI struct {
	Raw    string
	Scheme string
	Params map[string]string
	Path   string
}

// ParseURI splits a resource string into scheme, parameters and path.
// Strings without a scheme are treated as plain files.
func ParseURI(raw string) (URI, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return URI{}, fmt.Errorf("%w: empty uri", ErrInvalidURI)
	}

	u := URI{Raw: raw, Params: map[string]string{}}

	colon := strings.Index(s, ":")
	if colon <= 0 || !validScheme(s[:colon]) {
		u.Scheme = "file"
		u.Path = s
		return u, nil
	}

	u.Scheme = strings.ToLower(s[:colon])
	rest := s[colon+1:]

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return URI{}, fmt.Errorf("%w: unterminated parameter list in %q", ErrInvalidURI, raw)
		}
		params, err := parseParams(rest[1:end])
		if err != nil {
			return URI{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
		}
		u.Params = params
		rest = rest[end+1:]
	}

	u.Path = strings.TrimPrefix(rest, "//")
	return u, nil
}

// validScheme rejects single letters so that C:\path style strings stay files
func validScheme(s string) bool {
	if len(s) < 2 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func parseParams(s string) (map[string]string, error) {
	params := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return params, nil
	}
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, found := strings.Cut(field, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return nil, fmt.Errorf("parameter %q has no key", field)
		}
		if !found {
			value = "1"
		}
		params[key] = strings.TrimSpace(value)
	}
	return params, nil
}

// String renders the URI back into its canonical form
func (u URI) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString(":")
	if len(u.Params) > 0 {
		keys := make([]string, 0, len(u.Params))
		for k := range u.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("[")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(u.Params[k])
		}
		b.WriteString("]")
	}
	b.WriteString("//")
	b.WriteString(u.Path)
	return b.String()
}

// Has reports whether the parameter was given
func (u URI) Has(key string) bool {
	_, ok := u.Params[key]
	return ok
}

// Get returns a parameter or def when absent
func (u URI) Get(key, def string) string {
	if v, ok := u.Params[key]; ok {
		return v
	}
	return def
}

// Int returns an integer parameter or def when absent
func (u URI) Int(key string, def int) (int, error) {
	v, ok := u.Params[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("parameter %s=%q is not an integer", key, v)
	}
	return n, nil
}

// Float returns a float parameter or def when absent
func (u URI) Float(key string, def float64) (float64, error) {
	v, ok := u.Params[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("parameter %s=%q is not a number", key, v)
	}
	return f, nil
}

// Bool returns a boolean parameter ("1", "true", "yes") or def when absent
func (u URI) Bool(key string, def bool) (bool, error) {
	v, ok := u.Params[key]
	if !ok {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return def, fmt.Errorf("parameter %s=%q is not a boolean", key, v)
}

// Duration accepts Go durations ("250ms") or bare milliseconds
func (u URI) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := u.Params[key]
	if !ok {
		return def, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("parameter %s=%q is not a duration", key, v)
	}
	return d, nil
}

// Size parses a WIDTHxHEIGHT parameter
func (u URI) Size(key string) (width, height int, ok bool, err error) {
	v, present := u.Params[key]
	if !present {
		return 0, 0, false, nil
	}
	width, height, err = ParseSize(v)
	if err != nil {
		return 0, 0, false, fmt.Errorf("parameter %s: %w", key, err)
	}
	return width, height, true, nil
}

// Format parses a pixel format parameter
func (u URI) Format(key string, def PixelFormat) (PixelFormat, error) {
	v, ok := u.Params[key]
	if !ok {
		return def, nil
	}
	return ParsePixelFormat(v)
}

// ParseSize parses "640x480"
func ParseSize(s string) (int, int, error) {
	ws, hs, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		return 0, 0, fmt.Errorf("size %q is not WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q has invalid width", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q has invalid height", s)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("size %q must be positive", s)
	}
	return w, h, nil
}
