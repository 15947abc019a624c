package protocol

import (
	"math"
	"math/big"
)

// rowChunk 个三进制位一组换算，3^40 < 2^64
const rowChunk = 40

var rowChunkBase = new(big.Int).Exp(big.NewInt(3), big.NewInt(rowChunk), nil)

// maxRowBytes width 个三进制位的整数最多占用的字节数
func maxRowBytes(width int) int {
	return int(math.Ceil(float64(width) * math.Log2(3) / 8))
}

// packRow 将一行格子（0/1/2）编码为：u16 格子数 + 最少字节的大端三进制整数。
// 格子数单独传输，前导 0 格不会在解码时丢失。
func packRow(tag Tag, row []uint8) ([]byte, error) {
	if len(row) > 0xFFFF {
		return nil, &ValueError{Tag: tag, Reason: "row has more than 65535 cells"}
	}
	n := new(big.Int)
	chunk := new(big.Int)
	scale := new(big.Int)
	for i := 0; i < len(row); i += rowChunk {
		end := min(i+rowChunk, len(row))
		var v uint64
		for _, cell := range row[i:end] {
			if cell > 2 {
				return nil, ErrInvalidCell
			}
			v = v*3 + uint64(cell)
		}
		if end-i == rowChunk {
			scale.Set(rowChunkBase)
		} else {
			scale.Exp(big.NewInt(3), big.NewInt(int64(end-i)), nil)
		}
		n.Mul(n, scale)
		n.Add(n, chunk.SetUint64(v))
	}
	digits := n.Bytes()
	out := make([]byte, 2, 2+len(digits))
	out[0] = byte(len(row) >> 8)
	out[1] = byte(len(row))
	return append(out, digits...), nil
}

func unpackRow(tag Tag, raw []byte) ([]uint8, error) {
	if len(raw) < 2 {
		return nil, &TruncatedDataError{What: "row width", Need: 2, Have: len(raw)}
	}
	width := int(beUint16(raw))
	// 先按长度拒绝，避免对超长整数做逐位除法
	if len(raw)-2 > maxRowBytes(width) {
		return nil, &ValueError{Tag: tag, Reason: "row value exceeds declared width"}
	}
	n := new(big.Int).SetBytes(raw[2:])
	row := make([]uint8, width)
	rem := new(big.Int)
	for i := width; i > 0 && n.Sign() != 0; {
		n.QuoRem(n, rowChunkBase, rem)
		v := rem.Uint64()
		for j := 0; j < rowChunk && i > 0; j++ {
			i--
			row[i] = uint8(v % 3)
			v /= 3
		}
		if v != 0 {
			return nil, &ValueError{Tag: tag, Reason: "row value exceeds declared width"}
		}
	}
	if n.Sign() != 0 {
		return nil, &ValueError{Tag: tag, Reason: "row value exceeds declared width"}
	}
	return row, nil
}
