package assistant

import "github.com/ZhengWei0000/Shopping-Assistant/internal/domain"

// Route classifies an assistant message.
type Route int

const (
	// RouteTerminate ends the turn.
	RouteTerminate Route = iota
	// RouteDispatch runs the invocation immediately.
	RouteDispatch
	// RouteSuspend waits for user confirmation.
	RouteSuspend
)

func (r Route) String() string {
	switch r {
	case RouteTerminate:
		return "terminate"
	case RouteDispatch:
		return "dispatch"
	case RouteSuspend:
		return "suspend"
	default:
		return "unknown"
	}
}

// RoutingDecision is the router's verdict for one assistant message.
type RoutingDecision struct {
	Route      Route
	Invocation domain.ToolInvocation
}

// Router decides what happens after the decision step answers. Only the
// first tool call is routed.
type Router struct {
	confirm    map[string]bool
	known      func(name string) bool
	failClosed bool
}

// NewRouter creates a Router. known reports whether a tool is registered;
// unregistered names dispatch (and fail there) unless failClosed is set.
func NewRouter(confirmationRequired []string, known func(name string) bool, failClosed bool) *Router {
	confirm := make(map[string]bool, len(confirmationRequired))
	for _, name := range confirmationRequired {
		confirm[name] = true
	}
	if known == nil {
		known = func(string) bool { return true }
	}
	return &Router{confirm: confirm, known: known, failClosed: failClosed}
}

// Route classifies msg.
func (r *Router) Route(msg domain.Message) RoutingDecision {
	if !msg.HasToolCalls() {
		return RoutingDecision{Route: RouteTerminate}
	}

	first := msg.ToolCalls[0]
	switch {
	case r.confirm[first.Name]:
		return RoutingDecision{Route: RouteSuspend, Invocation: first}
	case r.failClosed && !r.known(first.Name):
		return RoutingDecision{Route: RouteSuspend, Invocation: first}
	default:
		return RoutingDecision{Route: RouteDispatch, Invocation: first}
	}
}
