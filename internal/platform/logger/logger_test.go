package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := Wrap(zap.New(core)).With(zap.String("tenant", "g1"))

	l.Event("PET_FED", "u1", zap.String("pet_id", "pet_1"))
	l.Debug("dropped")

	entries := logs.All()
	assert.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "PET_FED", ctx["event_type"])
	assert.Equal(t, "u1", ctx["actor_id"])
	assert.Equal(t, "pet_1", ctx["pet_id"])
	assert.Equal(t, "g1", ctx["tenant"])
}

func TestNewFallsBackToInfo(t *testing.T) {
	l := New("nonsense", "json")
	assert.True(t, l.Zap().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Zap().Core().Enabled(zapcore.DebugLevel))
}
