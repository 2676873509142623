package relay

import "fmt"

// Event types published for every overlay call.
const (
	TypeOpen  = "open"
	TypeClear = "clear"
	TypeTitle = "title"
	TypeFrame = "frame"
	TypeClose = "close"
)

var knownTypes = map[string]bool{
	TypeOpen: true, TypeClear: true, TypeTitle: true, TypeFrame: true, TypeClose: true,
}

// Config is the relay section of a capture profile.
type Config struct {
	// Types limits published events. Empty means every type.
	Types []string `yaml:"types,omitempty"`
	// IncludeImages embeds frames as data URLs. Without it frame events only
	// carry their position.
	IncludeImages bool `yaml:"include_images"`
	BufferSize    int  `yaml:"buffer_size,omitempty"`
}

func DefaultConfig() Config {
	return Config{IncludeImages: true, BufferSize: defaultBufferSize}
}

// Validate rejects unknown event types and negative buffers.
func (c Config) Validate() error {
	for i, t := range c.Types {
		if !knownTypes[t] {
			return fmt.Errorf("relay config: types[%d] %q is not one of open, clear, title, frame, close", i, t)
		}
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("relay config: buffer_size must not be negative")
	}
	return nil
}

func (c Config) allows(eventType string) bool {
	if len(c.Types) == 0 {
		return true
	}
	for _, t := range c.Types {
		if t == eventType {
			return true
		}
	}
	return false
}
