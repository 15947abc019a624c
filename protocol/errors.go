package protocol

import (
	"errors"
	"fmt"
)

// ErrProtocol 是所有协议层错误的根，可用 errors.Is 判断
var ErrProtocol = errors.New("protocol error")

var (
	ErrMaxDepthExceeded   = fmt.Errorf("%w: max nesting depth exceeded", ErrProtocol)
	ErrFieldTooLarge      = fmt.Errorf("%w: field value exceeds 65535 bytes", ErrProtocol)
	ErrPacketTooLarge     = fmt.Errorf("%w: packet exceeds 65535 bytes", ErrProtocol)
	ErrInvalidFrameLength = fmt.Errorf("%w: frame length smaller than prefix", ErrProtocol)
	ErrInvalidBool        = fmt.Errorf("%w: invalid boolean value", ErrProtocol)
	ErrInvalidUTF8        = fmt.Errorf("%w: invalid utf-8 string", ErrProtocol)
	ErrInvalidCell        = fmt.Errorf("%w: maze cell out of range", ErrProtocol)
)

// UnknownTagError 解码时遇到未注册的 tag
type UnknownTagError struct {
	Tag Tag
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("protocol: unknown tag 0x%04X", uint16(e.Tag))
}

func (e *UnknownTagError) Is(target error) bool { return target == ErrProtocol }

// TruncatedDataError 数据不足：Need 为需要的字节数，Have 为剩余字节数
type TruncatedDataError struct {
	What string
	Need int
	Have int
}

func (e *TruncatedDataError) Error() string {
	return fmt.Sprintf("protocol: truncated %s: need %d bytes, have %d", e.What, e.Need, e.Have)
}

func (e *TruncatedDataError) Is(target error) bool { return target == ErrProtocol }

// ValueError 值与 tag 声明的类型不符，或值本身不合法
type ValueError struct {
	Tag    Tag
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("protocol: bad value for %s: %s", e.Tag, e.Reason)
}

func (e *ValueError) Is(target error) bool { return target == ErrProtocol }
