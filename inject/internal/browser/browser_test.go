package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockedTypes(t *testing.T) {
	got := blockedTypes([]string{"images", "Font", " media ", "stylesheets", "script", ""})
	assert.Equal(t, map[proto.NetworkResourceType]bool{
		proto.NetworkResourceTypeImage:      true,
		proto.NetworkResourceTypeFont:       true,
		proto.NetworkResourceTypeMedia:      true,
		proto.NetworkResourceTypeStylesheet: true,
	}, got)
}

func TestBlockedTypes_Empty(t *testing.T) {
	assert.Empty(t, blockedTypes(nil))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeHeadless, m)

	m, err = ParseMode("headful")
	require.NoError(t, err)
	assert.Equal(t, "headful", m.String())

	_, err = ParseMode("kiosk")
	assert.Error(t, err)
}

func TestManager_OpenBeforeStart(t *testing.T) {
	m := NewManager(Config{})
	_, err := m.Open(t.Context(), "about:blank")
	assert.ErrorContains(t, err, "no active browser")
	assert.Nil(t, m.Browser())
	require.NoError(t, m.Close())
	assert.ErrorContains(t, m.Start(t.Context()), "closed")
}

func TestAppendScript_ClickStaysOnButton(t *testing.T) {
	assert.Contains(t, appendScript, "e.stopPropagation()")
	assert.Contains(t, appendScript, "this.append(el)")
}
