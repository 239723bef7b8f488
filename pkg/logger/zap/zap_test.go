package zap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestScopeField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := NewFactory(zap.New(core))

	log := f.NewLogger("ice")
	log.Infof("gathered %d candidates", 3)
	log.Trace("trace goes to debug")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "gathered 3 candidates", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "ice", entries[0].ContextMap()["scope"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}
