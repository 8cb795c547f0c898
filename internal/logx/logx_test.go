package logx_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shythm/road-cctv-recanalyzer/internal/logx"
	"github.com/stretchr/testify/assert"
)

// TestConfigureLevelSurvivesFirstComponentCall guards against ensure's
// once-initialized default ("") silently overwriting an explicit
// Configure call the first time any logger is obtained afterward.
func TestConfigureLevelSurvivesFirstComponentCall(t *testing.T) {
	logx.Configure("warn")

	_ = logx.Component("anything")

	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
