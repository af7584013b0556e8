package domain

import "errors"

var (
	ErrNotFound                 = errors.New("not found")
	ErrNotInRoom                = errors.New("not in room")
	ErrAlreadyInRoom            = errors.New("already in room")
	ErrIncompatibleCapabilities = errors.New("incompatible capabilities")
	ErrTimeout                  = errors.New("timeout")
	ErrEngineFault              = errors.New("media engine fault")
	ErrClosed                   = errors.New("session closed")
	ErrBadRequest               = errors.New("bad request")
	ErrRateLimited              = errors.New("rate limited")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "NotFound"},
	{ErrNotInRoom, "NotInRoom"},
	{ErrAlreadyInRoom, "AlreadyInRoom"},
	{ErrIncompatibleCapabilities, "IncompatibleCapabilities"},
	{ErrTimeout, "Timeout"},
	{ErrEngineFault, "EngineFault"},
	{ErrClosed, "Closed"},
	{ErrBadRequest, "BadRequest"},
	{ErrRateLimited, "RateLimited"},
	{ErrDisplayNameTooLong, "BadRequest"},
	{ErrRoomNameEmpty, "BadRequest"},
	{ErrRoomNameTooLong, "BadRequest"},
}

// Code maps err to the code reported to clients.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}
