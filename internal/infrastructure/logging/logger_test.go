package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	log, err := New(Config{Level: "debug", Development: true})
	require.NoError(t, err)
	require.NotNil(t, log)

	_, err = New(Config{Level: "nope"})
	assert.Error(t, err)
}

func TestDerivedLoggersKeepWrapperType(t *testing.T) {
	log := NewNop()

	// Named and With must return the wrapper, not the embedded zap.Logger,
	// so components can store and re-derive them.
	var named *Logger = log.Named("store")
	require.NotNil(t, named)

	var with *Logger = named.With(zap.String("component", "beacon"))
	require.NotNil(t, with)

	var again *Logger = with.Named("inner")
	require.NotNil(t, again)
}
