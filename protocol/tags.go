package protocol

import "fmt"

// Tag 字段类型标识（16 位）。数值是同一部署两端之间的约定，只增不改。
type Tag uint16

const (
	TagUsername     Tag = 0x0001
	TagPassword     Tag = 0x0002
	TagJWTToken     Tag = 0x0003
	TagSuccess      Tag = 0x0004
	TagErrorMessage Tag = 0x0005

	TagRoomID         Tag = 0x0010
	TagCurrentPlayers Tag = 0x0011
	TagMaxPlayers     Tag = 0x0012
	TagMinPlayers     Tag = 0x0013
	TagOwner          Tag = 0x0014
	TagState          Tag = 0x0015
	TagRound          Tag = 0x0016
	TagNumRounds      Tag = 0x0017
	TagPlayers        Tag = 0x0018 // USERNAME 列表
	TagRoom           Tag = 0x0019 // 房间记录
	TagRooms          Tag = 0x001A // ROOM 列表

	TagDirection Tag = 0x0020
	TagPosition  Tag = 0x0021
	TagPositions Tag = 0x0022 // POSITION 列表

	TagMap           Tag = 0x0030 // ROW 列表
	TagRow           Tag = 0x0031
	TagColour        Tag = 0x0032
	TagColours       Tag = 0x0033
	TagPlayerColours Tag = 0x0034
	TagMapColours    Tag = 0x0035
	TagGameInfo      Tag = 0x0036
	TagScore         Tag = 0x0037
)

// kind 决定字段值的 Go 类型与线上编码
type kind uint8

const (
	kindUint32   kind = iota + 1 // uint32，4 字节大端
	kindString                   // string，UTF-8
	kindBool                     // bool，1 字节
	kindColour                   // Colour，4 字节大端字 0x00RRGGBB
	kindPosition                 // Position，2×u16
	kindRow                      // []uint8，迷宫行
	kindList                     // 同构列表，元素 tag 见 elem
	kindRoom                     // RoomInfo 记录
	kindGameInfo                 // GameInfo 记录
)

type fieldCodec struct {
	name string
	kind kind
	elem Tag
}

// registry 在包初始化后只读，可被并发共享
var registry = map[Tag]fieldCodec{
	TagUsername:     {name: "USERNAME", kind: kindString},
	TagPassword:     {name: "PASSWORD", kind: kindString},
	TagJWTToken:     {name: "JWT_TOKEN", kind: kindString},
	TagSuccess:      {name: "SUCCESS", kind: kindBool},
	TagErrorMessage: {name: "ERROR_MESSAGE", kind: kindString},

	TagRoomID:         {name: "ROOM_ID", kind: kindString},
	TagCurrentPlayers: {name: "CURRENT_PLAYERS", kind: kindUint32},
	TagMaxPlayers:     {name: "MAX_PLAYERS", kind: kindUint32},
	TagMinPlayers:     {name: "MIN_PLAYERS", kind: kindUint32},
	TagOwner:          {name: "OWNER", kind: kindString},
	TagState:          {name: "STATE", kind: kindUint32},
	TagRound:          {name: "ROUND", kind: kindUint32},
	TagNumRounds:      {name: "NUM_ROUNDS", kind: kindUint32},
	TagPlayers:        {name: "PLAYERS", kind: kindList, elem: TagUsername},
	TagRoom:           {name: "ROOM", kind: kindRoom},
	TagRooms:          {name: "ROOMS", kind: kindList, elem: TagRoom},

	TagDirection: {name: "DIRECTION", kind: kindString},
	TagPosition:  {name: "POSITION", kind: kindPosition},
	TagPositions: {name: "POSITIONS", kind: kindList, elem: TagPosition},

	TagMap:           {name: "MAP", kind: kindList, elem: TagRow},
	TagRow:           {name: "ROW", kind: kindRow},
	TagColour:        {name: "COLOUR", kind: kindColour},
	TagColours:       {name: "COLOURS", kind: kindList, elem: TagColour},
	TagPlayerColours: {name: "PLAYER_COLOURS", kind: kindList, elem: TagColour},
	TagMapColours:    {name: "MAP_COLOURS", kind: kindList, elem: TagColour},
	TagGameInfo:      {name: "GAME_INFO", kind: kindGameInfo},
	TagScore:         {name: "SCORE", kind: kindUint32},
}

// Registered 报告 tag 是否有编解码器
func Registered(t Tag) bool {
	_, ok := registry[t]
	return ok
}

// Tags 返回全部已注册 tag（顺序不定）
func Tags() []Tag {
	out := make([]Tag, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}

func (t Tag) String() string {
	if c, ok := registry[t]; ok {
		return c.name
	}
	return fmt.Sprintf("TAG(0x%04X)", uint16(t))
}
