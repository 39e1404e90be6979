package engine

import (
	"sync"
	"sync/atomic"

	"github.com/ggoodman/mcp-file-server/internal/logctx"
	"github.com/ggoodman/mcp-file-server/mcp"
	"github.com/ggoodman/mcp-file-server/sessions"
	"github.com/google/uuid"
)

// session is the single connection's negotiated state. The state word is
// written only by the handshake and by Shutdown; everything else is frozen at
// activation and read under mu.
type session struct {
	id    string
	state atomic.Int32

	// initialized records notifications/initialized from the client.
	initialized atomic.Bool

	mu              sync.RWMutex
	protocolVersion string
	client          sessions.ClientInfo
	caps            sessions.CapabilitySet
}

var _ sessions.Session = (*session)(nil)

func newSession() *session {
	s := &session{id: uuid.NewString()}
	s.state.Store(int32(sessions.StatePending))
	return s
}

func (s *session) SessionID() string { return s.id }

func (s *session) State() sessions.State { return sessions.State(s.state.Load()) }

func (s *session) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

func (s *session) ClientInfo() sessions.ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

func (s *session) ClientCapabilities() sessions.CapabilitySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

// activate freezes the negotiated parameters and moves Pending to Active. It
// reports false when the session was not pending.
func (s *session) activate(version string, client mcp.ImplementationInfo, caps mcp.ClientCapabilities) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != sessions.StatePending {
		return false
	}
	s.protocolVersion = version
	s.client = sessions.ClientInfo{Name: client.Name, Version: client.Version}
	s.caps = capabilitySet(caps)
	s.state.Store(int32(sessions.StateActive))
	return true
}

func (s *session) close() {
	s.state.Store(int32(sessions.StateClosed))
}

func (s *session) logData() *logctx.SessionData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &logctx.SessionData{
		SessionID:       s.id,
		State:           s.State().String(),
		Client:          s.client.String(),
		ProtocolVersion: s.protocolVersion,
	}
}

func capabilitySet(caps mcp.ClientCapabilities) sessions.CapabilitySet {
	var cs sessions.CapabilitySet
	if caps.Roots != nil {
		cs.Roots = true
		cs.RootsListChanged = caps.Roots.ListChanged
	}
	cs.Sampling = caps.Sampling != nil
	cs.Elicitation = caps.Elicitation != nil
	return cs
}
