package mqtt

import (
	"testing"

	"github.com/quickstream/quickstream/internal/logger"
)

// Test buildTopic behavior with/without user prefix.
func TestBuildTopic(t *testing.T) {
	log, _ := logger.NewLogrusLogger("error", "json")
	c := &client{
		cfg: &Config{
			Topics: TopicConfig{
				UseUserPrefix: true,
			},
		},
		logger:     log,
		userPrefix: "alice",
	}

	if got := c.buildTopic("foo/bar"); got != "alice/foo/bar" {
		t.Fatalf("expected alice/foo/bar, got %s", got)
	}

	// No double slashes
	if got := c.buildTopic("/foo/bar"); got != "alice/foo/bar" {
		t.Fatalf("expected alice/foo/bar, got %s", got)
	}

	// Without prefix
	c.userPrefix = ""
	if got := c.buildTopic("foo/bar"); got != "foo/bar" {
		t.Fatalf("expected foo/bar, got %s", got)
	}
}
