// binding.go holds the client an integration is installed on.

package integrations

import (
	"errors"
	"sync/atomic"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// errInstalled is returned when an integration value is set up on a
// second client.
var errInstalled = errors.New("integration is already installed on a client")

// binding is embedded by integrations that capture after setup.
type binding struct {
	client atomic.Pointer[beacon.Client]
}

func (b *binding) bind(c *beacon.Client) error {
	if !b.client.CompareAndSwap(nil, c) {
		return errInstalled
	}
	return nil
}

func (b *binding) unbind() {
	b.client.Store(nil)
}

// bound returns the client, or nil before Setup and after Teardown.
func (b *binding) bound() *beacon.Client {
	return b.client.Load()
}
