package jobsink

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/polisai/polis-chain/pkg/domain"
)

// RequiredAttributes must be present on every trigger event.
var RequiredAttributes = []string{"id", "source", "type", "specversion"}

// Validate checks that payload is a JSON object carrying every required
// attribute as a non-empty string.
func Validate(payload []byte) error {
	if !gjson.ValidBytes(payload) {
		return fmt.Errorf("%w: trigger is not valid json", domain.ErrInvalidEvent)
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return fmt.Errorf("%w: trigger is not a json object", domain.ErrInvalidEvent)
	}

	for _, attr := range RequiredAttributes {
		value := root.Get(attr)
		if !value.Exists() {
			return fmt.Errorf("%w: missing attribute %q", domain.ErrInvalidEvent, attr)
		}
		if value.Type != gjson.String || value.Str == "" {
			return fmt.Errorf("%w: attribute %q must be a non-empty string", domain.ErrInvalidEvent, attr)
		}
	}
	return nil
}
