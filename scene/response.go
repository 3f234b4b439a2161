package scene

import (
	"time"

	"github.com/vantle/scenekit/graph"
)

// verb is the closed set of canonical callback outcomes.
type verb uint8

const (
	verbNoReply verb = iota
	verbReply
	verbHalt
	verbCont
	verbIgnore
	verbStop
)

// String returns the canonical spelling of a verb.
func (v verb) String() string {
	switch v {
	case verbNoReply:
		return "noreply"
	case verbReply:
		return "reply"
	case verbHalt:
		return "halt"
	case verbCont:
		return "cont"
	case verbIgnore:
		return "ignore"
	case verbStop:
		return "stop"
	default:
		return "invalid"
	}
}

type pushDirective struct {
	g   *graph.Graph
	sub string
}

// Response is the value every host callback returns: a canonical verb plus
// an optional directive set (graph push, timeout, continuation token,
// hibernate hint). Build one with a constructor and chain With* methods.
type Response struct {
	verb   verb
	reply  any
	reason error

	// cont in event filters carries the possibly transformed event.
	event    Event
	hasEvent bool

	push       *pushDirective
	timeout    time.Duration
	hasTimeout bool
	token      any
	hasToken   bool
	hibernate  bool

	// legacy records the deprecated spelling this response was built
	// from, for the one-time advisory.
	legacy string
}

// NoReply consumes the message without replying.
func NoReply() Response { return Response{verb: verbNoReply} }

// Reply answers a synchronous call with v.
func Reply(v any) Response { return Response{verb: verbReply, reply: v} }

// Halt consumes an input or event, stopping its propagation.
func Halt() Response { return Response{verb: verbHalt} }

// Cont declines an input: the original raw input is forwarded back to the
// distribution point for default routing toward this scene's parent.
func Cont() Response { return Response{verb: verbCont} }

// ContEvent passes a (possibly transformed) event on to this scene's own
// parent.
func ContEvent(ev Event) Response {
	return Response{verb: verbCont, event: ev, hasEvent: true}
}

// Ignore declines scene startup: the actor terminates cleanly without
// error. Only meaningful from Init.
func Ignore() Response { return Response{verb: verbIgnore} }

// Stop terminates the actor with the given reason after running the
// module's Terminate cleanup.
func Stop(reason error) Response { return Response{verb: verbStop, reason: reason} }

// Continue is a deprecated spelling of Cont, accepted for backward
// compatibility with a one-time advisory.
//
// Deprecated: use Cont.
func Continue() Response {
	r := Cont()
	r.legacy = "continue"
	return r
}

// Halted is a deprecated spelling of Halt, accepted for backward
// compatibility with a one-time advisory.
//
// Deprecated: use Halt.
func Halted() Response {
	r := Halt()
	r.legacy = "halted"
	return r
}

// WithPush requests publication of the scene's primary graph before the
// dispatch completes.
func (r Response) WithPush(g *graph.Graph) Response {
	r.push = &pushDirective{g: g}
	return r
}

// WithPushSub requests publication of a graph under a specific sub id.
func (r Response) WithPushSub(g *graph.Graph, sub string) Response {
	r.push = &pushDirective{g: g, sub: sub}
	return r
}

// WithTimeout arms a one-shot timer delivering a Timeout message if no
// other message arrives first.
func (r Response) WithTimeout(d time.Duration) Response {
	r.timeout = d
	r.hasTimeout = true
	return r
}

// WithContinue schedules token for redelivery to HandleContinue before any
// other message. A continuation wins over a timeout in the same response.
func (r Response) WithContinue(token any) Response {
	r.token = token
	r.hasToken = true
	return r
}

// WithHibernate hints that the scene expects to stay idle. Advisory only.
func (r Response) WithHibernate() Response {
	r.hibernate = true
	return r
}

// Reason returns the stop reason of a Stop response.
func (r Response) Reason() error { return r.reason }
