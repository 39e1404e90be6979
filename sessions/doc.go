// Package sessions defines the session abstraction shared by the dispatcher
// and server capability code. A session represents the negotiated protocol
// version, the client identity and the frozen capability sets for the one
// client connected over a transport.
//
// Layers & Roles
//
//	Transport      -> carries frames, signals closure
//	Dispatcher     -> owns the session, drives its state machine
//	Session object -> read-only view handed to handlers and observers
//
// # State
//
// A session moves Pending -> Active -> Closed. Only the initialize handshake
// moves it to Active and only shutdown moves it to Closed. Handlers observe
// the state but can never change it: the Session interface exposes getters
// only.
package sessions
