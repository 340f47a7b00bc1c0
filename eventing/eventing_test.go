package eventing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgclosets/go-common/logger"
)

func TestLogPublisher(t *testing.T) {
	log := logger.NewTestLogger()
	p := NewLogPublisher(log)
	defer p.Close()

	assert.NoError(t, p.Publish(context.Background(), "abtest.winner", []byte(`{"test":"t1"}`)))
	assert.Len(t, log.Logs, 1)
	assert.Equal(t, "INFO", log.Logs[0].Severity)
}

func TestCapturePublisher(t *testing.T) {
	p := NewCapturePublisher()
	defer p.Close()

	payload := []byte("payload")
	assert.NoError(t, p.Publish(context.Background(), "cache.sweep", payload))

	// Mutating the caller's slice must not affect the captured copy.
	payload[0] = 'X'

	events := p.Events()
	assert.Len(t, events, 1)
	assert.Equal(t, "cache.sweep", events[0].Subject)
	assert.Equal(t, []byte("payload"), events[0].Data)
}
