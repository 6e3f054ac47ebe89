package eventmirror

import (
	"testing"

	"github.com/fedi-cli/fedi/internal/bus"
	"github.com/fedi-cli/fedi/internal/common/config"
	"github.com/fedi-cli/fedi/internal/common/logger"
)

func TestNewWithEmptyURLDisablesMirror(t *testing.T) {
	m, err := New(config.NATSConfig{}, logger.Default())
	if err != nil {
		t.Fatalf("expected no error for a disabled mirror, got %v", err)
	}
	if m != nil {
		t.Fatalf("expected a nil mirror when no URL is configured, got %+v", m)
	}
}

func TestNilMirrorPublishAndCloseAreNoops(t *testing.T) {
	var m *Mirror
	m.Publish("session-1", bus.Event{Kind: bus.EventMessage})
	m.Close()
}
