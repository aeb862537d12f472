package pipewire

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstNodeID(t *testing.T) {
	id, err := firstNodeID(dbus.MakeVariant([][]interface{}{{uint32(42), map[string]dbus.Variant{}}}))
	require.NoError(t, err)
	assert.Equal(t, uint32(42), id)

	id, err = firstNodeID(dbus.MakeVariant([]interface{}{[]interface{}{uint32(7)}}))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), id)

	_, err = firstNodeID(dbus.MakeVariant("nope"))
	assert.Error(t, err)
}

func TestObjectPath(t *testing.T) {
	p, err := objectPath(dbus.MakeVariant(dbus.ObjectPath("/org/freedesktop/portal/desktop/session/1")))
	require.NoError(t, err)
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/portal/desktop/session/1"), p)

	p, err = objectPath(dbus.MakeVariant("/s/2"))
	require.NoError(t, err)
	assert.Equal(t, dbus.ObjectPath("/s/2"), p)

	_, err = objectPath(dbus.MakeVariant(uint32(3)))
	assert.Error(t, err)
}

func TestDefaultShareOptions(t *testing.T) {
	opts := DefaultShareOptions()
	assert.Equal(t, uint32(SourceTypeMonitor), opts.SourceTypes)
	assert.Equal(t, uint32(CursorModeEmbedded), opts.CursorMode)
}
