package protocol

import "fmt"

// PacketID 包类型。0x1xxx 为请求，0x2xxx 为响应，0x3xxx 为服务端主动推送的信号。
type PacketID uint16

const (
	RequestLogin      PacketID = 0x1001
	RequestRegister   PacketID = 0x1002
	RequestCreateRoom PacketID = 0x1003
	RequestJoinRoom   PacketID = 0x1004
	RequestLeaveRoom  PacketID = 0x1005
	RequestListRooms  PacketID = 0x1006
	RequestStartGame  PacketID = 0x1007
	RequestMove       PacketID = 0x1008

	ResponseLoginResult      PacketID = 0x2001
	ResponseRegisterResult   PacketID = 0x2002
	ResponseCreateRoomResult PacketID = 0x2003
	ResponseJoinRoomResult   PacketID = 0x2004
	ResponseLeaveRoomResult  PacketID = 0x2005
	ResponseListRoomsResult  PacketID = 0x2006
	ResponseStartGameResult  PacketID = 0x2007
	ResponseMoveResult       PacketID = 0x2008
	ResponseAuthError        PacketID = 0x20FE
	ResponseError            PacketID = 0x20FF

	SignalAccepted        PacketID = 0x3001
	SignalPlayerJoin      PacketID = 0x3002
	SignalPlayerLeave     PacketID = 0x3003
	SignalStartGame       PacketID = 0x3004
	SignalUpdatePositions PacketID = 0x3005
	SignalScoreUpdate     PacketID = 0x3006
	SignalGameOver        PacketID = 0x3007
)

var packetNames = map[PacketID]string{
	RequestLogin:      "REQUEST_LOGIN",
	RequestRegister:   "REQUEST_REGISTER",
	RequestCreateRoom: "REQUEST_CREATE_ROOM",
	RequestJoinRoom:   "REQUEST_JOIN_ROOM",
	RequestLeaveRoom:  "REQUEST_LEAVE_ROOM",
	RequestListRooms:  "REQUEST_LIST_ROOMS",
	RequestStartGame:  "REQUEST_START_GAME",
	RequestMove:       "REQUEST_MOVE",

	ResponseLoginResult:      "RESPONSE_LOGIN_RESULT",
	ResponseRegisterResult:   "RESPONSE_REGISTER_RESULT",
	ResponseCreateRoomResult: "RESPONSE_CREATE_ROOM_RESULT",
	ResponseJoinRoomResult:   "RESPONSE_JOIN_ROOM_RESULT",
	ResponseLeaveRoomResult:  "RESPONSE_LEAVE_ROOM_RESULT",
	ResponseListRoomsResult:  "RESPONSE_LIST_ROOMS_RESULT",
	ResponseStartGameResult:  "RESPONSE_START_GAME_RESULT",
	ResponseMoveResult:       "RESPONSE_MOVE_RESULT",
	ResponseAuthError:        "RESPONSE_AUTH_ERROR",
	ResponseError:            "RESPONSE_ERROR",

	SignalAccepted:        "SIGNAL_ACCEPTED",
	SignalPlayerJoin:      "SIGNAL_PLAYER_JOIN",
	SignalPlayerLeave:     "SIGNAL_PLAYER_LEAVE",
	SignalStartGame:       "SIGNAL_START_GAME",
	SignalUpdatePositions: "SIGNAL_UPDATE_POSITIONS",
	SignalScoreUpdate:     "SIGNAL_SCORE_UPDATE",
	SignalGameOver:        "SIGNAL_GAME_OVER",
}

func (id PacketID) String() string {
	if name, ok := packetNames[id]; ok {
		return name
	}
	return fmt.Sprintf("PACKET(0x%04X)", uint16(id))
}

func (id PacketID) IsRequest() bool { return id&0xF000 == 0x1000 }

func (id PacketID) IsResponse() bool { return id&0xF000 == 0x2000 }

func (id PacketID) IsSignal() bool { return id&0xF000 == 0x3000 }

// Packet 包 ID 加有序字段列表
type Packet struct {
	ID     PacketID
	Fields []Field
}

func NewPacket(id PacketID, fields ...Field) *Packet {
	return &Packet{ID: id, Fields: fields}
}

// EncodePacket 编码为 packet_id || fields（不含长度前缀）
func EncodePacket(p *Packet) ([]byte, error) {
	e := NewEncoder()
	e.WriteUint16(uint16(p.ID))
	for _, f := range p.Fields {
		if err := appendField(e, f.Tag, f.Value, 0); err != nil {
			return nil, fmt.Errorf("encode %s: %w", p.ID, err)
		}
	}
	if e.Len()+LengthPrefixSize > MaxFrameSize {
		return nil, fmt.Errorf("encode %s: %w", p.ID, ErrPacketTooLarge)
	}
	return e.Bytes(), nil
}

// DecodePacket 解码 packet_id || fields
func DecodePacket(body []byte) (*Packet, error) {
	r := &reader{buf: body}
	id, err := r.uint16("packet id")
	if err != nil {
		return nil, err
	}
	fields, err := readFields(r, 0)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", PacketID(id), err)
	}
	return &Packet{ID: PacketID(id), Fields: fields}, nil
}

// Value 返回第一个匹配 tag 的字段值
func (p *Packet) Value(tag Tag) (any, bool) {
	for _, f := range p.Fields {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return nil, false
}

func (p *Packet) String(tag Tag) (string, bool) {
	v, ok := p.Value(tag)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (p *Packet) Uint32(tag Tag) (uint32, bool) {
	v, ok := p.Value(tag)
	if !ok {
		return 0, false
	}
	n, ok := v.(uint32)
	return n, ok
}

func (p *Packet) Bool(tag Tag) (bool, bool) {
	v, ok := p.Value(tag)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Has 报告包中是否含有该 tag
func (p *Packet) Has(tag Tag) bool {
	_, ok := p.Value(tag)
	return ok
}
