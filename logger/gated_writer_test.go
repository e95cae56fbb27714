package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatedWriter_BuffersUntilOpen(t *testing.T) {
	var out bytes.Buffer
	gw := NewGatedWriter(GatedWriterConfig{
		Underlying:   &out,
		InitialState: GateClosed,
	})

	_, err := gw.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = gw.Write([]byte("second\n"))
	require.NoError(t, err)

	assert.Zero(t, out.Len())
	assert.Equal(t, len("first\nsecond\n"), gw.BufferedSize())

	require.NoError(t, gw.OpenGate())
	assert.Equal(t, "first\nsecond\n", out.String())
	assert.Zero(t, gw.BufferedSize())

	// Once open, writes pass straight through
	_, err = gw.Write([]byte("third\n"))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\nthird\n", out.String())
}

func TestGatedWriter_MaxBufferDiscardsOldest(t *testing.T) {
	var out bytes.Buffer
	gw := NewGatedWriter(GatedWriterConfig{
		Underlying:    &out,
		InitialState:  GateClosed,
		MaxBufferSize: 8,
	})

	gw.Write([]byte("aaaa"))
	gw.Write([]byte("bbbb"))
	gw.Write([]byte("cccc"))

	require.NoError(t, gw.OpenGate())
	assert.Equal(t, "bbbbcccc", out.String())
}

func TestGatedLogger_SubsystemSharesGate(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Outputs = nil
	cfg.Format = JSONFormat

	log, _ := NewGatedLogger(cfg, GatedWriterConfig{
		Underlying:   &out,
		InitialState: GateClosed,
	})

	sub := log.WithSubsystem("session")
	sub.Info("buffered while closed")
	assert.Zero(t, out.Len())

	require.NoError(t, log.OpenGate())
	assert.Contains(t, out.String(), "buffered while closed")
	assert.True(t, log.IsGateOpen())
}

// consumesLogger stands in for the stores and factories that take the
// Logger interface rather than the concrete gated type.
func consumesLogger(l Logger) Logger {
	return l.WithSubsystem("store")
}

func TestGatedLogger_UsableAsLogger(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Outputs = nil
	cfg.Format = JSONFormat

	log, _ := NewGatedLogger(cfg, GatedWriterConfig{
		Underlying:   &out,
		InitialState: GateOpen,
	})

	sub := consumesLogger(log)
	sub.Info("through the interface")
	assert.Contains(t, out.String(), "through the interface")

	// Derived loggers pass through the same interface boundary
	consumesLogger(sub).Info("derived again")
	assert.Contains(t, out.String(), "derived again")
}
