package engine

import "errors"

var (
	ErrRoomNotFound = errors.New("room_not_found")
	ErrRoomEnded    = errors.New("room_ended")
	ErrNotJoined    = errors.New("not_joined")
	ErrNotHost      = errors.New("not_host")
)
