// Package cloudevent maps the router's event envelope onto the CloudEvents
// wire format. It decodes inbound HTTP requests and job trigger payloads,
// writes reply events, and posts events to downstream destinations.
//
// Events are written in HTTP binary mode: attributes travel as ce-* headers
// and the payload is the body.
package cloudevent
