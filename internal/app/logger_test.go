package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("warn", "json", &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = newLogger("verbose", "text", &buf)
	assert.ErrorContains(t, err, `invalid log_level "verbose"`)

	_, err = newLogger("info", "xml", &buf)
	assert.ErrorContains(t, err, `invalid log_format "xml"`)
}
