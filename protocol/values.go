package protocol

// Colour RGB 三元组
type Colour struct {
	R, G, B uint8
}

// Position 迷宫坐标，X 为列，Y 为行
type Position struct {
	X, Y uint16
}

// RoomInfo 房间记录（ROOM 字段的值）
type RoomInfo struct {
	ID             string
	CurrentPlayers uint32
	MaxPlayers     uint32
	MinPlayers     uint32
	State          uint32
	Players        []string
	Round          uint32
	NumRounds      uint32
	Owner          string
}

// GameInfo 开局信息（GAME_INFO 字段的值）
type GameInfo struct {
	Map             [][]uint8
	PlayerColours   []Colour
	MapColours      []Colour
	PlayerPositions []Position
}
