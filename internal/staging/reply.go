package staging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeReply reads the first JSON object in a model reply. Models
// sometimes wrap the object in a ```json fence or add a sentence after it;
// both are ignored.
func decodeReply[T any](raw string) (T, error) {
	var out T
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return out, fmt.Errorf("no JSON object in reply (%d bytes)", len(raw))
	}
	dec := json.NewDecoder(strings.NewReader(raw[start:]))
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("invalid JSON in reply: %w (text: %s)", err, truncateString(raw[start:], 200))
	}
	return out, nil
}
