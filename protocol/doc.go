// Package protocol 实现迷宫对战的 TLV 二进制协议。
//
// 线上格式（全部大端）：
//
//	packet: [u16 total_length][u16 packet_id][field]*
//	field:  [u16 tag][u16 length][length 字节的值]
//
// total_length 包含自身的 2 字节。每个 tag 在 registry 中对应唯一的值类型；
// 复合字段（ROOM、GAME_INFO 以及各种列表）的值本身是一段字段流，
// 以字段自己的 length 为边界，没有额外的数量前缀。
//
// 迷宫行 ROW 编码为 [u16 格子数][最少字节的三进制大端整数]，
// 格子数随行传输，因此前导的 0 格能完整还原。
package protocol
