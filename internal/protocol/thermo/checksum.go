package thermo

import (
	"encoding/binary"
	"hash/crc32"
)

// CalculateCRC32 计算数据包校验值（IEEE 多项式，与 zlib 一致）
// 校验范围：type(1) + packetNo(2) + respNo(2) + payload，不含起止符、版本与长度
func CalculateCRC32(t PacketType, number, responseNumber uint16, payload []byte) uint32 {
	var hdr [5]byte
	hdr[0] = byte(t)
	binary.LittleEndian.PutUint16(hdr[1:3], number)
	binary.LittleEndian.PutUint16(hdr[3:5], responseNumber)

	crc := crc32.Update(0, crc32.IEEETable, hdr[:])
	return crc32.Update(crc, crc32.IEEETable, payload)
}
