package protocol

import (
	"errors"
	"io"
)

const (
	// LengthPrefixSize 帧前缀长度，前缀值包含自身 2 字节
	LengthPrefixSize = 2

	// MaxFrameSize 帧总长上限（含前缀）
	MaxFrameSize = 0xFFFF
)

// AppendFrame 把 body 加上长度前缀追加到 dst
func AppendFrame(dst, body []byte) ([]byte, error) {
	total := len(body) + LengthPrefixSize
	if total > MaxFrameSize {
		return dst, ErrPacketTooLarge
	}
	dst = append(dst, byte(total>>8), byte(total))
	return append(dst, body...), nil
}

// WriteFrame 以单次 Write 写出一帧，避免并发写交错
func WriteFrame(w io.Writer, body []byte) error {
	frame, err := AppendFrame(make([]byte, 0, len(body)+LengthPrefixSize), body)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadFrame 读取一帧并返回去掉前缀的 body。
// 在帧边界上对端关闭返回 io.EOF，帧中途关闭返回 io.ErrUnexpectedEOF。
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	total := int(beUint16(hdr[:]))
	if total < LengthPrefixSize {
		return nil, ErrInvalidFrameLength
	}
	body := make([]byte, total-LengthPrefixSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// MarshalPacket 编码并加帧
func MarshalPacket(p *Packet) ([]byte, error) {
	body, err := EncodePacket(p)
	if err != nil {
		return nil, err
	}
	return AppendFrame(make([]byte, 0, len(body)+LengthPrefixSize), body)
}

func WritePacket(w io.Writer, p *Packet) error {
	frame, err := MarshalPacket(p)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

func ReadPacket(r io.Reader) (*Packet, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodePacket(body)
}
