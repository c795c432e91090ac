package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-servicing/internal/config"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("loan_id", "LN-1").Info("installments generated")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "installments generated", entry["msg"])
	assert.Equal(t, "LN-1", entry["loan_id"])
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(config.LoggingConfig{Level: "loud", Format: "text"}, &buf)

	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.Contains(t, buf.String(), "Invalid log level")
}
