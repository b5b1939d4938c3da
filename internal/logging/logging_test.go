package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSON(t *testing.T) {
	defer func() { _ = Setup(os.Stderr, "info", "text") }()

	var buf bytes.Buffer
	require.NoError(t, Setup(&buf, "debug", "json"))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	Component("runner").WithField("worker", 3).Debug("started")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "runner", line["component"])
	assert.Equal(t, float64(3), line["worker"])
	assert.Equal(t, "started", line["msg"])
}

func TestSetup_Invalid(t *testing.T) {
	assert.Error(t, Setup(os.Stderr, "loud", "text"))
	assert.Error(t, Setup(os.Stderr, "info", "xml"))
}
