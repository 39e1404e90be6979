package sessions

import (
	"context"
	"strconv"
)

// State is the lifecycle phase of a session.
type State int32

const (
	// StatePending is the initial state: only initialize is accepted.
	StatePending State = iota
	// StateActive follows a successful handshake.
	StateActive
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Session is a read-only view of the negotiated session. Implementations MUST
// be safe for concurrent use.
type Session interface {
	SessionID() string
	State() State
	// ProtocolVersion is the negotiated MCP protocol version. Empty while pending.
	ProtocolVersion() string
	// ClientInfo is the peer identity reported during initialize.
	ClientInfo() ClientInfo
	// ClientCapabilities is the capability set the client reported.
	ClientCapabilities() CapabilitySet
}

// ClientInfo identifies the client connecting to the server.
type ClientInfo struct {
	Name    string
	Version string
}

func (c ClientInfo) String() string {
	if c.Name == "" {
		return "unknown"
	}
	return c.Name + " " + c.Version
}

// CapabilitySet is the flattened set of client capabilities frozen at
// initialize time.
type CapabilitySet struct {
	Roots            bool
	RootsListChanged bool
	Sampling         bool
	Elicitation      bool
}

type sessionKey struct{}

// WithSession returns a context carrying sess.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// FromContext returns the session attached to ctx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(Session)
	return sess, ok
}
