package handler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skapxd/image-optimization-service/internal/entities"
)

// parseCallbacks decodes the callbacks form field. Clients routinely mangle
// the field: a bare object arrives instead of an array, or several objects
// are concatenated with "},{" and no surrounding brackets. Both shapes are
// repaired before giving up.
func parseCallbacks(raw string) ([]entities.CallbackSink, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var sinks []entities.CallbackSink
	if err := json.Unmarshal([]byte(raw), &sinks); err == nil {
		return sinks, nil
	}

	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		if err := json.Unmarshal([]byte("["+raw+"]"), &sinks); err == nil {
			return sinks, nil
		}
	}

	return nil, fmt.Errorf("callbacks field is not a JSON array of callback objects")
}
