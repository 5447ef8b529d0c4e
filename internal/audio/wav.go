package audio

import (
	"encoding/binary"
	"fmt"
)

type wavInfo struct {
	sampleRate    uint32
	channels      uint16
	bitsPerSample uint16
	byteRate      uint32
	blockAlign    uint16
	dataOffset    int
	dataSize      int
}

func parseWAV(b []byte) (wavInfo, error) {
	var info wavInfo
	if len(b) < 44 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return info, fmt.Errorf("not a RIFF/WAVE buffer")
	}

	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		switch id {
		case "fmt ":
			if pos+8+16 > len(b) {
				return info, fmt.Errorf("truncated fmt chunk")
			}
			data := b[pos+8:]
			info.channels = binary.LittleEndian.Uint16(data[2:4])
			info.sampleRate = binary.LittleEndian.Uint32(data[4:8])
			info.byteRate = binary.LittleEndian.Uint32(data[8:12])
			info.blockAlign = binary.LittleEndian.Uint16(data[12:14])
			info.bitsPerSample = binary.LittleEndian.Uint16(data[14:16])
		case "data":
			info.dataOffset = pos + 8
			info.dataSize = size
			if info.dataOffset+info.dataSize > len(b) {
				info.dataSize = len(b) - info.dataOffset
			}
		}
		pos += 8 + size
		if size%2 == 1 {
			pos++
		}
	}

	if info.byteRate == 0 || info.dataOffset == 0 || info.dataSize <= 0 {
		return info, fmt.Errorf("missing fmt or data chunk")
	}
	return info, nil
}

// DurationOf reads the duration of a PCM WAV buffer from its header, falling
// back to the given value when the header cannot be parsed.
func DurationOf(b []byte, fallback float64) float64 {
	info, err := parseWAV(b)
	if err != nil {
		return fallback
	}
	return float64(info.dataSize) / float64(info.byteRate)
}

// SliceWAV cuts [startSec, endSec) out of a PCM WAV buffer, rebuilding a
// standalone header for the slice. On any parse problem the whole buffer is
// returned; sending extra audio to the engine beats sending none.
func SliceWAV(b []byte, startSec, endSec float64) []byte {
	info, err := parseWAV(b)
	if err != nil || endSec <= startSec {
		return b
	}

	align := int(info.blockAlign)
	if align == 0 {
		align = 1
	}

	startByte := int(startSec * float64(info.byteRate))
	endByte := int(endSec * float64(info.byteRate))
	startByte -= startByte % align
	endByte -= endByte % align

	if startByte < 0 {
		startByte = 0
	}
	if endByte > info.dataSize {
		endByte = info.dataSize
	}
	if startByte >= endByte {
		return b
	}

	data := b[info.dataOffset+startByte : info.dataOffset+endByte]
	return buildWAV(info, data)
}

func buildWAV(info wavInfo, data []byte) []byte {
	out := make([]byte, 44+len(data))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(data)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], info.channels)
	binary.LittleEndian.PutUint32(out[24:28], info.sampleRate)
	binary.LittleEndian.PutUint32(out[28:32], info.byteRate)
	binary.LittleEndian.PutUint16(out[32:34], info.blockAlign)
	binary.LittleEndian.PutUint16(out[34:36], info.bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(data)))
	copy(out[44:], data)
	return out
}
