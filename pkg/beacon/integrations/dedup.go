// dedup.go implements the Deduplication integration.

package integrations

import "github.com/strongdm/ai-beacon/pkg/beacon"

// Deduplication exempts categories from deduplication so every
// occurrence is delivered.
type Deduplication struct {
	exempt []beacon.Category
}

// NewDeduplication creates the Deduplication integration.
func NewDeduplication(exempt ...beacon.Category) *Deduplication {
	return &Deduplication{exempt: exempt}
}

func (d *Deduplication) Kind() beacon.IntegrationKind { return beacon.IntegrationDeduplication }

func (d *Deduplication) Setup(c *beacon.Client) error {
	for _, cat := range d.exempt {
		if err := c.ExemptFromDedup(cat); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deduplication) Teardown() {}
