// Package core carries the small cross-cutting conventions every engine
// component shares: a placement descriptor, and optional observation hooks
// a caller can attach to watch start/complete timing without coupling the
// component to a specific tracer implementation.
package core

// Layer describes the architectural slice a component belongs to.
type Layer string

const (
	LayerIntake    Layer = "intake"
	LayerEngine    Layer = "engine"
	LayerData      Layer = "data"
	LayerDispatch  Layer = "dispatch"
	LayerSecurity  Layer = "security"
)

// Descriptor advertises a component's placement and capabilities. Purely
// informational; does not change runtime behavior.
type Descriptor struct {
	Name         string
	Layer        Layer
	Capabilities []string
}
