package harness

import "github.com/roach88/crudkit/internal/ir"

// Trace phases.
const (
	PhaseSetup = "setup"
	PhaseFlow  = "flow"
)

// Call outcomes.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// TraceEvent is one procedure call and its outcome.
type TraceEvent struct {
	Seq       int         // 1-based position in the trace
	Phase     string      // PhaseSetup or PhaseFlow
	Procedure string      // e.g. "product.create"
	Args      ir.IRObject // arguments as sent
	Status    string      // StatusOK or StatusError
	Code      string      // error code when Status is StatusError
	Message   string      // error message when Status is StatusError
	Result    ir.IRValue  // procedure output when Status is StatusOK
}

// canonical renders the event for golden files.
func (ev TraceEvent) canonical() ir.IRObject {
	obj := ir.IRObject{
		"seq":       ir.IRInt(ev.Seq),
		"phase":     ir.IRString(ev.Phase),
		"procedure": ir.IRString(ev.Procedure),
		"args":      ev.Args,
		"status":    ir.IRString(ev.Status),
	}
	if ev.Status == StatusError {
		obj["code"] = ir.IRString(ev.Code)
		obj["message"] = ir.IRString(ev.Message)
	} else if ev.Result != nil {
		obj["result"] = ev.Result
	}
	return obj
}

// Result is the outcome of one scenario.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool

	// Trace holds every setup and flow call in order.
	Trace []TraceEvent

	// Errors lists failed expectations and assertions.
	Errors []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record appends a call to the trace and returns it.
func (r *Result) record(phase, procedure string, args ir.IRObject, out ir.IRValue, code, message string) TraceEvent {
	ev := TraceEvent{
		Seq:       len(r.Trace) + 1,
		Phase:     phase,
		Procedure: procedure,
		Args:      args,
		Status:    StatusOK,
		Result:    out,
	}
	if code != "" {
		ev.Status, ev.Code, ev.Message, ev.Result = StatusError, code, message, nil
	}
	r.Trace = append(r.Trace, ev)
	return ev
}
