// resource.go implements the ResourceError integration.

package integrations

import (
	"context"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// ResourceError reports resources that failed to load, such as a
// missing asset or an unreachable dependency.
type ResourceError struct {
	binding
}

// NewResourceError creates the ResourceError integration.
func NewResourceError() *ResourceError {
	return &ResourceError{}
}

func (r *ResourceError) Kind() beacon.IntegrationKind { return beacon.IntegrationResourceError }

func (r *ResourceError) Setup(c *beacon.Client) error { return r.bind(c) }

func (r *ResourceError) Teardown() { r.unbind() }

// Report captures a failed load of url. resourceType names the kind of
// resource ("script", "image", "config"); err may be nil.
func (r *ResourceError) Report(ctx context.Context, url, resourceType string, err error) {
	c := r.bound()
	if c == nil {
		return
	}
	raw := beacon.RawEvent{
		Category:     beacon.CategoryResourceError,
		URL:          url,
		ResourceType: resourceType,
	}
	if err != nil {
		raw.Fields = map[string]any{"resource_error": err.Error()}
	}
	c.CaptureContext(ctx, raw)
}
