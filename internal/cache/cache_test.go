package cache

import (
	"strings"
	"testing"
	"time"

	"xslhost/internal/config"
	"xslhost/pkg/engine"
)

func taskWith(input, stylesheet string, params engine.Params) *engine.Task {
	return &engine.Task{
		Input:      engine.BufferDocument([]byte(input)),
		Stylesheet: engine.BufferDocument([]byte(stylesheet)),
		Params:     params,
	}
}

func TestKey(t *testing.T) {
	base := taskWith("<a/>", "<sheet/>", engine.Params{{Key: "k", Value: "v"}})
	baseKey := Key("builtin", base)

	tests := []struct {
		name     string
		engine   string
		task     *engine.Task
		distinct bool // whether the key should differ from baseKey
	}{
		{
			name:     "identical task",
			engine:   "builtin",
			task:     taskWith("<a/>", "<sheet/>", engine.Params{{Key: "k", Value: "v"}}),
			distinct: false,
		},
		{
			name:     "different input",
			engine:   "builtin",
			task:     taskWith("<b/>", "<sheet/>", engine.Params{{Key: "k", Value: "v"}}),
			distinct: true,
		},
		{
			name:     "different stylesheet",
			engine:   "builtin",
			task:     taskWith("<a/>", "<other/>", engine.Params{{Key: "k", Value: "v"}}),
			distinct: true,
		},
		{
			name:     "different engine",
			engine:   "libxslt",
			task:     taskWith("<a/>", "<sheet/>", engine.Params{{Key: "k", Value: "v"}}),
			distinct: true,
		},
		{
			name:     "different param value",
			engine:   "builtin",
			task:     taskWith("<a/>", "<sheet/>", engine.Params{{Key: "k", Value: "w"}}),
			distinct: true,
		},
		{
			name:   "param order matters",
			engine: "builtin",
			task: taskWith("<a/>", "<sheet/>", engine.Params{
				{Key: "k", Value: "v"}, {Key: "k", Value: "v2"},
			}),
			distinct: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := Key(tt.engine, tt.task)
			if tt.distinct && key == baseKey {
				t.Error("expected different keys but got same")
			}
			if !tt.distinct && key != baseKey {
				t.Error("expected same keys but got different")
			}
		})
	}
}

func TestKeyFieldBoundaries(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide thanks to length prefixing.
	k1 := Key("e", taskWith("ab", "c", nil))
	k2 := Key("e", taskWith("a", "bc", nil))
	if k1 == k2 {
		t.Error("adjacent fields must not collide")
	}
}

func TestKeyPrefix(t *testing.T) {
	key := Key("builtin", taskWith("<a/>", "<s/>", nil))
	if !strings.HasPrefix(key, "xslhost:result:") {
		t.Errorf("unexpected key shape: %q", key)
	}
}

func TestNewRequiresAddr(t *testing.T) {
	if _, err := New(config.RedisConfig{}, time.Minute); err == nil {
		t.Error("expected an error without a redis addr")
	}

	c, err := New(config.RedisConfig{Addr: "localhost:6379"}, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
}
