package cloudevent

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/types"

	"github.com/polisai/polis-chain/pkg/domain"
)

// ToCloudEvent converts an envelope into an SDK event.
func ToCloudEvent(e domain.Event) (cloudevents.Event, error) {
	version := e.SpecVersion
	if version == "" {
		version = domain.DefaultSpecVersion
	}

	ce := cloudevents.NewEvent(version)
	ce.SetID(e.ID)
	ce.SetSource(e.Source)
	ce.SetType(e.Type)
	if e.DataContentType != "" {
		ce.SetDataContentType(e.DataContentType)
	}
	if e.Data != nil {
		ce.DataEncoded = e.Data
		ce.DataBase64 = !isJSONData(e.DataContentType, e.Data)
	}
	for name, value := range e.Extensions {
		ce.SetExtension(name, value)
	}

	if err := ce.Validate(); err != nil {
		return cloudevents.Event{}, fmt.Errorf("%w: %w", domain.ErrInvalidEvent, err)
	}
	return ce, nil
}

// FromCloudEvent converts an SDK event into an envelope.
func FromCloudEvent(ce cloudevents.Event) domain.Event {
	e := domain.Event{
		ID:              ce.ID(),
		Source:          ce.Source(),
		Type:            ce.Type(),
		SpecVersion:     ce.SpecVersion(),
		DataContentType: ce.DataContentType(),
		Data:            ce.Data(),
	}

	if exts := ce.Extensions(); len(exts) > 0 {
		e.Extensions = make(map[string]string, len(exts))
		for name, value := range exts {
			s, err := types.ToString(value)
			if err != nil {
				s = fmt.Sprint(value)
			}
			e.Extensions[name] = s
		}
	}
	return e
}

// Decode parses a CloudEvent in JSON structured format.
func Decode(data []byte) (domain.Event, error) {
	var ce cloudevents.Event
	if err := json.Unmarshal(data, &ce); err != nil {
		return domain.Event{}, fmt.Errorf("%w: decode json: %w", domain.ErrInvalidEvent, err)
	}
	if err := ce.Validate(); err != nil {
		return domain.Event{}, fmt.Errorf("%w: %w", domain.ErrInvalidEvent, err)
	}
	return FromCloudEvent(ce), nil
}

// Encode renders an envelope as a CloudEvent in JSON structured format.
func Encode(e domain.Event) ([]byte, error) {
	ce, err := ToCloudEvent(e)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(ce)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return data, nil
}

// isJSONData reports whether data can be carried as a JSON value. Without a
// content type the payload itself decides.
func isJSONData(contentType string, data []byte) bool {
	if contentType == "" {
		return json.Valid(data)
	}
	return isJSON(contentType)
}

// isJSON reports whether a payload of this content type can be embedded as
// raw JSON. An empty content type is treated as JSON, as CloudEvents does.
func isJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || mediaType == "text/json" || strings.HasSuffix(mediaType, "+json")
}
