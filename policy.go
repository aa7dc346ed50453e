package rescache

import "github.com/bookvault/rescache/store"

// Policy decides where values land as they move between tiers. The stock
// behavior is DefaultPolicy; substitute your own to disable promotion for
// large one-shot payloads, route only small entries to the persistent tier,
// and so on, without touching the orchestrator.
type Policy interface {
	// PromoteOnL2Hit reports whether a value found in the persistent tier
	// should be copied into memory.
	PromoteOnL2Hit(e *store.Entry) bool

	// WriteThroughOnFill reports whether a value obtained from the origin,
	// or handed in via Set, should be written to the persistent tier.
	WriteThroughOnFill(ownerID, resourcePath string, size int64) bool
}

// DefaultPolicy promotes persistent hits and writes fills through when the
// respective flag is set.
type DefaultPolicy struct {
	Promote      bool
	WriteThrough bool
}

var _ Policy = DefaultPolicy{}

func (p DefaultPolicy) PromoteOnL2Hit(*store.Entry) bool { return p.Promote }

func (p DefaultPolicy) WriteThroughOnFill(string, string, int64) bool { return p.WriteThrough }
