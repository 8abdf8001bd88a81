package domain

import (
	"fmt"
	"maps"
	"slices"
)

// DefaultSpecVersion is the CloudEvents spec version stamped on events that
// arrive without one.
const DefaultSpecVersion = "1.0"

// Event is the envelope passed between chain steps. Source names the step that
// produced it and Type names the address its successor must be posted to.
// DataContentType, Data and Extensions are never interpreted by the router.
type Event struct {
	ID              string
	Source          string
	Type            string
	SpecVersion     string
	DataContentType string
	Data            []byte
	Extensions      map[string]string
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	out := e
	if e.Data != nil {
		out.Data = slices.Clone(e.Data)
	}
	if e.Extensions != nil {
		out.Extensions = maps.Clone(e.Extensions)
	}
	return out
}

// WithID returns a copy of the event carrying the given id.
func (e Event) WithID(id string) Event {
	out := e.Clone()
	out.ID = id
	return out
}

// WithSource returns a copy of the event carrying the given source.
func (e Event) WithSource(source string) Event {
	out := e.Clone()
	out.Source = source
	return out
}

// WithType returns a copy of the event carrying the given type.
func (e Event) WithType(typ string) Event {
	out := e.Clone()
	out.Type = typ
	return out
}

// String renders the routing attributes for logs. Payload bytes are left out.
func (e Event) String() string {
	return fmt.Sprintf("id=%s source=%s type=%s datacontenttype=%s data_bytes=%d",
		e.ID, e.Source, e.Type, e.DataContentType, len(e.Data))
}
