package logger

import (
	"testing"

	"monad-trade-agent-go/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(config.Logger{Level: "debug", Format: "json"}, "agent")
	assert.NoError(t, err)
	assert.NotNil(t, log)

	_, err = NewLogger(config.Logger{Level: "loud"}, "agent")
	assert.Error(t, err)
}
