package cloudevent

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudevents/sdk-go/v2/binding"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"

	"github.com/polisai/polis-chain/pkg/domain"
)

// FromRequest decodes the CloudEvent carried by an HTTP request, in either
// binary or structured mode.
func FromRequest(r *http.Request) (domain.Event, error) {
	ce, err := cehttp.NewEventFromHTTPRequest(r)
	if err != nil {
		return domain.Event{}, fmt.Errorf("%w: %w", domain.ErrInvalidEvent, err)
	}
	if err := ce.Validate(); err != nil {
		return domain.Event{}, fmt.Errorf("%w: %w", domain.ErrInvalidEvent, err)
	}
	return FromCloudEvent(*ce), nil
}

// WriteResponse writes e as the HTTP reply with status 200.
func WriteResponse(ctx context.Context, w http.ResponseWriter, e domain.Event) error {
	ce, err := ToCloudEvent(e)
	if err != nil {
		return err
	}
	return cehttp.WriteResponseWriter(binding.WithForceBinary(ctx), binding.ToMessage(&ce), http.StatusOK, w)
}

// WriteRequest encodes e into req.
func WriteRequest(ctx context.Context, req *http.Request, e domain.Event) error {
	ce, err := ToCloudEvent(e)
	if err != nil {
		return err
	}
	return cehttp.WriteRequest(binding.WithForceBinary(ctx), binding.ToMessage(&ce), req)
}

// FromResponse decodes the CloudEvent carried by an HTTP response. The second
// return value is false when the response carries no event.
func FromResponse(resp *http.Response) (domain.Event, bool) {
	ce, err := cehttp.NewEventFromHTTPResponse(resp)
	if err != nil || ce == nil {
		return domain.Event{}, false
	}
	return FromCloudEvent(*ce), true
}
