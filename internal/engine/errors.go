package engine

import "errors"

var (
	// ErrUnavailable means the engine process could not be started or
	// never completed the UCI handshake. Analysis runs treat this as fatal.
	ErrUnavailable = errors.New("engine unavailable")

	// ErrTimeout means no terminal bestmove arrived within the search
	// budget plus grace margin. The session is closed when this is
	// returned; callers must open a new one.
	ErrTimeout = errors.New("engine timeout")

	// ErrProtocol means the engine's response stream was malformed
	// (unparseable score or move tokens, or EOF mid-search).
	ErrProtocol = errors.New("engine protocol error")

	// ErrClosed is returned for operations on a closed session.
	ErrClosed = errors.New("engine session closed")

	// ErrBusy is returned when Evaluate is called while a previous
	// search on the same session is still outstanding.
	ErrBusy = errors.New("engine session busy")
)
