package jobsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-chain/pkg/domain"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Validate([]byte(triggerJSON)))

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "not json", payload: `{"id":`, want: "not valid json"},
		{name: "not an object", payload: `["id"]`, want: "not a json object"},
		{name: "missing id", payload: `{"specversion":"1.0","source":"cli","type":"t"}`, want: `missing attribute "id"`},
		{name: "missing type", payload: `{"specversion":"1.0","id":"1","source":"cli"}`, want: `missing attribute "type"`},
		{name: "missing specversion", payload: `{"id":"1","source":"cli","type":"t"}`, want: `missing attribute "specversion"`},
		{name: "empty source", payload: `{"specversion":"1.0","id":"1","source":"","type":"t"}`, want: `attribute "source" must be a non-empty string`},
		{name: "numeric id", payload: `{"specversion":"1.0","id":1,"source":"cli","type":"t"}`, want: `attribute "id" must be a non-empty string`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]byte(tt.payload))
			require.ErrorIs(t, err, domain.ErrInvalidEvent)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
