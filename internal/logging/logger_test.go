package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/barotovamirbek/elowy-chat/internal/config"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LogConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.WithField("user_id", 7).Info("connected")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "connected", entry["msg"])
	require.EqualValues(t, 7, entry["user_id"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "chatty", Format: "text"}, nil)
	require.Error(t, err)
}
