package server

import "errors"

// 业务错误，作为 ERROR_MESSAGE 返回给客户端，不断开连接
var (
	ErrRoomExists       = errors.New("room already exists")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrRoomNotJoinable  = errors.New("room is not accepting players")
	ErrAlreadyInRoom    = errors.New("already in a room")
	ErrNotInRoom        = errors.New("not in a room")
	ErrNotOwner         = errors.New("only the room owner can start the game")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrGameInProgress   = errors.New("game already in progress")
	ErrNotPlaying       = errors.New("game is not running")
	ErrInvalidMove      = errors.New("invalid move")
	ErrBadDirection     = errors.New("unknown direction")
	ErrInvalidRoomID    = errors.New("invalid room id")
	ErrAlreadyOnline    = errors.New("user already logged in")
	ErrSessionBound     = errors.New("connection already logged in as another user")
)
