package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("upgrade", Config{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.WithField("step", "deploy").Debug("module deployed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "upgrade", entry["component"])
	assert.Equal(t, "deploy", entry["step"])
	assert.Equal(t, "module deployed", entry["msg"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("upgrade", Config{Level: "warn", Output: &buf})
	require.NoError(t, err)

	log.Info("hidden")
	assert.Zero(t, buf.Len())
	log.WithFieldMap(map[string]interface{}{"selector": "0x1f931c1c"}).Warn("shown")
	assert.Contains(t, buf.String(), "selector=0x1f931c1c")
	assert.Contains(t, buf.String(), "component=upgrade")
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New("x", Config{Level: "loud"})
	assert.Error(t, err)
	_, err = New("x", Config{Format: "xml"})
	assert.Error(t, err)
}

func TestNewDefault(t *testing.T) {
	log := NewDefault("facetctl")
	assert.Equal(t, "facetctl", log.Component())
	assert.NotNil(t, NewDiscard())
}
