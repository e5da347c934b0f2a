package asyncmanager

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-async-manager/core"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("debug", LogFormatJSON, &buf)
	require.NoError(t, err)

	logger.Info("task submitted", core.F("scheduler", "main"), core.F("attempt", 2))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "task submitted", entry["msg"])
	assert.Equal(t, "main", entry["scheduler"])
	assert.EqualValues(t, 2, entry["attempt"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("warn", LogFormatText, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestNewLogger_Errors(t *testing.T) {
	_, err := NewLogger("chatty", LogFormatText, nil)
	assert.Error(t, err)

	_, err = NewLogger("info", "xml", nil)
	assert.Error(t, err)

	logger, err := NewLogger("INFO", "", nil)
	require.NoError(t, err)
	assert.NotNil(t, logger.Slog())
}
