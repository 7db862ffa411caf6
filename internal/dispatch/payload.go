package dispatch

import (
	"encoding/json"
	"fmt"

	"orgcore.org/internal/event"
)

func decode(e event.Event, v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}
