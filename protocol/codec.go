package protocol

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxFieldLength 单个字段值的最大长度（16 位长度）
	MaxFieldLength = 0xFFFF

	// MaxDepth 复合字段的最大嵌套深度，防止恶意输入耗尽栈
	MaxDepth = 8
)

// Field 一个已解码的 TLV 字段，Value 的 Go 类型由 Tag 唯一决定
type Field struct {
	Tag   Tag
	Value any
}

// EncodeField 编码单个字段：tag || length || value
func EncodeField(tag Tag, v any) ([]byte, error) {
	e := NewEncoder()
	if err := appendField(e, tag, v, 0); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodeFields 顺序编码多个字段
func EncodeFields(fields []Field) ([]byte, error) {
	e := NewEncoder()
	for _, f := range fields {
		if err := appendField(e, f.Tag, f.Value, 0); err != nil {
			return nil, err
		}
	}
	return e.Bytes(), nil
}

// DecodeField 从 data[off:] 读取一个字段，返回字段与下一个偏移
func DecodeField(data []byte, off int) (Field, int, error) {
	if off < 0 || off > len(data) {
		return Field{}, off, &TruncatedDataError{What: "field", Need: off, Have: len(data)}
	}
	r := &reader{buf: data, pos: off}
	f, err := readField(r, 0)
	if err != nil {
		return Field{}, off, err
	}
	return f, r.pos, nil
}

// DecodeFields 解码一段完整的字段流，恰好消费全部字节
func DecodeFields(data []byte) ([]Field, error) {
	return readFields(&reader{buf: data}, 0)
}

func readFields(r *reader, depth int) ([]Field, error) {
	fields := make([]Field, 0, 4)
	for !r.eof() {
		f, err := readField(r, depth)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func readField(r *reader, depth int) (Field, error) {
	t, err := r.uint16("tag")
	if err != nil {
		return Field{}, err
	}
	n, err := r.uint16("length")
	if err != nil {
		return Field{}, err
	}
	tag := Tag(t)
	c, ok := registry[tag]
	if !ok {
		return Field{}, &UnknownTagError{Tag: tag}
	}
	raw, err := r.bytes(int(n), c.name)
	if err != nil {
		return Field{}, err
	}
	v, err := decodeValue(tag, c, raw, depth)
	if err != nil {
		return Field{}, err
	}
	return Field{Tag: tag, Value: v}, nil
}

func appendField(e *Encoder, tag Tag, v any, depth int) error {
	c, ok := registry[tag]
	if !ok {
		return &UnknownTagError{Tag: tag}
	}
	val, err := encodeValue(tag, c, v, depth)
	if err != nil {
		return err
	}
	if len(val) > MaxFieldLength {
		return fmt.Errorf("%s: %w", tag, ErrFieldTooLarge)
	}
	e.WriteUint16(uint16(tag))
	e.WriteUint16(uint16(len(val)))
	e.WriteBytes(val)
	return nil
}

func typeError(tag Tag, v any, want string) error {
	return &ValueError{Tag: tag, Reason: fmt.Sprintf("got %T, want %s", v, want)}
}

func encodeValue(tag Tag, c fieldCodec, v any, depth int) ([]byte, error) {
	switch c.kind {
	case kindUint32:
		n, ok := v.(uint32)
		if !ok {
			return nil, typeError(tag, v, "uint32")
		}
		return []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}, nil
	case kindString:
		s, ok := v.(string)
		if !ok {
			return nil, typeError(tag, v, "string")
		}
		return []byte(s), nil
	case kindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeError(tag, v, "bool")
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case kindColour:
		col, ok := v.(Colour)
		if !ok {
			return nil, typeError(tag, v, "Colour")
		}
		return []byte{0, col.R, col.G, col.B}, nil
	case kindPosition:
		p, ok := v.(Position)
		if !ok {
			return nil, typeError(tag, v, "Position")
		}
		return []byte{byte(p.X >> 8), byte(p.X), byte(p.Y >> 8), byte(p.Y)}, nil
	case kindRow:
		row, ok := v.([]uint8)
		if !ok {
			return nil, typeError(tag, v, "[]uint8")
		}
		return packRow(tag, row)
	case kindList:
		if depth >= MaxDepth {
			return nil, ErrMaxDepthExceeded
		}
		items, err := listItems(tag, c, v)
		if err != nil {
			return nil, err
		}
		e := NewEncoder()
		for _, it := range items {
			if err := appendField(e, c.elem, it, depth+1); err != nil {
				return nil, err
			}
		}
		return e.Bytes(), nil
	case kindRoom:
		if depth >= MaxDepth {
			return nil, ErrMaxDepthExceeded
		}
		room, ok := v.(RoomInfo)
		if !ok {
			return nil, typeError(tag, v, "RoomInfo")
		}
		return encodeRecord(depth, []Field{
			{Tag: TagRoomID, Value: room.ID},
			{Tag: TagCurrentPlayers, Value: room.CurrentPlayers},
			{Tag: TagMaxPlayers, Value: room.MaxPlayers},
			{Tag: TagState, Value: room.State},
			{Tag: TagPlayers, Value: room.Players},
			{Tag: TagRound, Value: room.Round},
			{Tag: TagNumRounds, Value: room.NumRounds},
			{Tag: TagMinPlayers, Value: room.MinPlayers},
			{Tag: TagOwner, Value: room.Owner},
		})
	case kindGameInfo:
		if depth >= MaxDepth {
			return nil, ErrMaxDepthExceeded
		}
		info, ok := v.(GameInfo)
		if !ok {
			return nil, typeError(tag, v, "GameInfo")
		}
		return encodeRecord(depth, []Field{
			{Tag: TagMap, Value: info.Map},
			{Tag: TagPlayerColours, Value: info.PlayerColours},
			{Tag: TagMapColours, Value: info.MapColours},
			{Tag: TagPositions, Value: info.PlayerPositions},
		})
	}
	return nil, &ValueError{Tag: tag, Reason: "no codec for kind"}
}

func encodeRecord(depth int, fields []Field) ([]byte, error) {
	e := NewEncoder()
	for _, f := range fields {
		if err := appendField(e, f.Tag, f.Value, depth+1); err != nil {
			return nil, err
		}
	}
	return e.Bytes(), nil
}

// listItems 将类型化切片展开为元素序列
func listItems(tag Tag, c fieldCodec, v any) ([]any, error) {
	var items []any
	switch list := v.(type) {
	case []string:
		for _, s := range list {
			items = append(items, s)
		}
	case []RoomInfo:
		for _, r := range list {
			items = append(items, r)
		}
	case []Position:
		for _, p := range list {
			items = append(items, p)
		}
	case [][]uint8:
		for _, row := range list {
			items = append(items, row)
		}
	case []Colour:
		for _, col := range list {
			items = append(items, col)
		}
	default:
		return nil, typeError(tag, v, "list of "+c.elem.String())
	}
	return items, nil
}

func decodeValue(tag Tag, c fieldCodec, raw []byte, depth int) (any, error) {
	switch c.kind {
	case kindUint32:
		if err := exactLen(tag, raw, 4); err != nil {
			return nil, err
		}
		return beUint32(raw), nil
	case kindString:
		if !utf8.Valid(raw) {
			return nil, fmt.Errorf("%s: %w", tag, ErrInvalidUTF8)
		}
		return string(raw), nil
	case kindBool:
		if err := exactLen(tag, raw, 1); err != nil {
			return nil, err
		}
		switch raw[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return nil, fmt.Errorf("%s: %w", tag, ErrInvalidBool)
	case kindColour:
		if err := exactLen(tag, raw, 4); err != nil {
			return nil, err
		}
		return Colour{R: raw[1], G: raw[2], B: raw[3]}, nil
	case kindPosition:
		if err := exactLen(tag, raw, 4); err != nil {
			return nil, err
		}
		return Position{X: beUint16(raw[0:2]), Y: beUint16(raw[2:4])}, nil
	case kindRow:
		return unpackRow(tag, raw)
	case kindList:
		if depth >= MaxDepth {
			return nil, ErrMaxDepthExceeded
		}
		return decodeList(tag, c, raw, depth)
	case kindRoom:
		if depth >= MaxDepth {
			return nil, ErrMaxDepthExceeded
		}
		return decodeRoom(raw, depth)
	case kindGameInfo:
		if depth >= MaxDepth {
			return nil, ErrMaxDepthExceeded
		}
		return decodeGameInfo(raw, depth)
	}
	return nil, &ValueError{Tag: tag, Reason: "no codec for kind"}
}

func exactLen(tag Tag, raw []byte, n int) error {
	if len(raw) < n {
		return &TruncatedDataError{What: tag.String(), Need: n, Have: len(raw)}
	}
	if len(raw) > n {
		return &ValueError{Tag: tag, Reason: fmt.Sprintf("%d trailing bytes", len(raw)-n)}
	}
	return nil
}

// decodeList 空列表解码为 nil，编码时 nil 与空切片同为零个元素
func decodeList(tag Tag, c fieldCodec, raw []byte, depth int) (any, error) {
	fields, err := readFields(&reader{buf: raw}, depth+1)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if f.Tag != c.elem {
			return nil, &ValueError{Tag: tag, Reason: fmt.Sprintf("item tagged %s, want %s", f.Tag, c.elem)}
		}
	}
	switch registry[c.elem].kind {
	case kindString:
		var out []string
		for _, f := range fields {
			out = append(out, f.Value.(string))
		}
		return out, nil
	case kindRoom:
		var out []RoomInfo
		for _, f := range fields {
			out = append(out, f.Value.(RoomInfo))
		}
		return out, nil
	case kindPosition:
		var out []Position
		for _, f := range fields {
			out = append(out, f.Value.(Position))
		}
		return out, nil
	case kindRow:
		var out [][]uint8
		for _, f := range fields {
			out = append(out, f.Value.([]uint8))
		}
		return out, nil
	case kindColour:
		var out []Colour
		for _, f := range fields {
			out = append(out, f.Value.(Colour))
		}
		return out, nil
	}
	return nil, &ValueError{Tag: tag, Reason: "unsupported list element"}
}

// decodeRoom 已注册但不属于房间记录的字段会被忽略
func decodeRoom(raw []byte, depth int) (any, error) {
	fields, err := readFields(&reader{buf: raw}, depth+1)
	if err != nil {
		return nil, err
	}
	var room RoomInfo
	for _, f := range fields {
		switch f.Tag {
		case TagRoomID:
			room.ID = f.Value.(string)
		case TagCurrentPlayers:
			room.CurrentPlayers = f.Value.(uint32)
		case TagMaxPlayers:
			room.MaxPlayers = f.Value.(uint32)
		case TagMinPlayers:
			room.MinPlayers = f.Value.(uint32)
		case TagState:
			room.State = f.Value.(uint32)
		case TagPlayers:
			room.Players = f.Value.([]string)
		case TagRound:
			room.Round = f.Value.(uint32)
		case TagNumRounds:
			room.NumRounds = f.Value.(uint32)
		case TagOwner:
			room.Owner = f.Value.(string)
		}
	}
	return room, nil
}

func decodeGameInfo(raw []byte, depth int) (any, error) {
	fields, err := readFields(&reader{buf: raw}, depth+1)
	if err != nil {
		return nil, err
	}
	var info GameInfo
	for _, f := range fields {
		switch f.Tag {
		case TagMap:
			info.Map = f.Value.([][]uint8)
		case TagPlayerColours:
			info.PlayerColours = f.Value.([]Colour)
		case TagMapColours:
			info.MapColours = f.Value.([]Colour)
		case TagPositions:
			info.PlayerPositions = f.Value.([]Position)
		}
	}
	return info, nil
}
