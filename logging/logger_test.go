package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"debug":    zerolog.DebugLevel,
		"warning":  zerolog.WarnLevel,
		" ERROR ":  zerolog.ErrorLevel,
		"":         zerolog.InfoLevel,
		"nonsense": zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNamedCarriesComponentAndRunID(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "debug", Format: "json", Writer: &buf, RunID: "run-1"})

	Named("CONTROL").Info().Str("phase", "SEARCHING").Msg("phase change")

	out := buf.String()
	assert.Contains(t, out, `"component":"CONTROL"`)
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"phase":"SEARCHING"`)
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "warn", Format: "json", Writer: &buf})

	Named("X").Debug().Msg("hidden")
	Named("X").Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
