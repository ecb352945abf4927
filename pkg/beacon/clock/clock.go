// Package clock provides the time source used by beacon's schedulers.
//
// Every component that waits (tier flush timers, the offline retry loop,
// the dedup sweep, the replay post-window) takes a Clock instead of
// calling the time package directly, so tests can drive them with Fake.
// Clock and Timer are the clockwork interfaces.
package clock

import "github.com/jonboulle/clockwork"

// Clock abstracts the time operations beacon needs.
type Clock = clockwork.Clock

// Timer is a pending timer or AfterFunc call.
type Timer = clockwork.Timer

// Real returns a Clock backed by the time package.
func Real() Clock { return clockwork.NewRealClock() }
