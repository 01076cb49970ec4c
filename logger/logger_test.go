package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	t.Run("child logger carries the component and the default service", func(t *testing.T) {
		var buf bytes.Buffer
		Configure(Config{Level: "debug", Output: &buf})

		l := WithComponent("mfcc")
		l.Info().Int("frames", 177).Msg("extracted")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

		assert.Equal(t, "mfcc", entry["component"])
		assert.Equal(t, "fltr", entry["service"])
		assert.Equal(t, "extracted", entry["message"])
		assert.EqualValues(t, 177, entry["frames"])
	})
}
