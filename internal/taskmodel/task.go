package taskmodel

import "time"

// State is the closed set of task lifecycle states, wire-compatible with
// the integer enum documented in spec.md §6.
type State int

const (
	StateUndefined State = -1
	StatePending   State = 0
	StateStarted   State = 1
	StateCanceled  State = 2
	StateFinished  State = 3
	StateFailed    State = 4
)

// String renders the state's name for log and error messages; over the
// HTTP API and in persistence a State is encoded as its integer value.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateStarted:
		return "STARTED"
	case StateCanceled:
		return "CANCELED"
	case StateFinished:
		return "FINISHED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNDEFINED"
	}
}

// IsTerminal reports whether no further transition is legal from s.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateFailed || s == StateCanceled
}

// validTransitions enumerates the permitted edges from spec.md §3's
// state diagram. UNDEFINED appears in neither side: it is reserved for
// "present in persistence but unparseable" and is never a legal source
// or destination of a transition.
var validTransitions = map[State]map[State]bool{
	StatePending: {
		StateStarted:  true,
		StateCanceled: true,
		StateFailed:   true,
	},
	StateStarted: {
		StateFinished: true,
		StateCanceled: true,
		StateFailed:   true,
	},
}

// CanTransition reports whether moving from -> to is a legal edge.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ParamMeta describes one entry of a driver's parameter schema:
// (name, desc, accept, optional) from spec.md §4.2.
type ParamMeta struct {
	Name     string   `json:"name"`
	Desc     string   `json:"desc"`
	Accept   []string `json:"accept"`
	Optional bool     `json:"optional"`
}

// Task is the persisted record described in spec.md §3: an immutable
// identity plus a mutable control block.
type Task struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Params    map[string]string `json:"params"`
	State     State             `json:"state"`
	Reason    string            `json:"reason"`
	Progress  float64           `json:"progress"`
	CreatedAt time.Time         `json:"createdat"`
}

// Clone returns a deep-enough copy safe to hand to a caller outside the
// registry's lock (Params is copied; Task itself has no other
// reference fields).
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Params = make(map[string]string, len(t.Params))
	for k, v := range t.Params {
		cp.Params[k] = v
	}
	return &cp
}

// Output is the persisted artifact record described in spec.md §3.
type Output struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Desc      string            `json:"desc"`
	TaskID    string            `json:"taskid"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdat"`
}

// Clone returns a copy of o safe to hand outside the catalog's lock.
func (o *Output) Clone() *Output {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Metadata = make(map[string]string, len(o.Metadata))
	for k, v := range o.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// Media type tags used across the catalog and the param schema accept lists.
const (
	MediaVideoMP4      = "video/mp4"
	MediaTextCSV       = "text/csv"
	MediaTextStdout    = "text/stdout"
	MediaTextStderr    = "text/stderr"
	MediaTextDetection = "text/detection"
)

// Primitive accept tags usable in a ParamMeta.Accept list.
const (
	PrimitiveStr      = "str"
	PrimitiveFloat    = "float"
	PrimitiveDatetime = "datetime"
	PrimitiveJSON     = "json"
)
