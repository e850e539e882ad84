package mcl

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeMapData decodes an occupancy map from the formats accepted on the
// wire:
// - Raw JSON (OccupancyMap object)
// - Zlib-compressed JSON
// - PNG with a zTXt chunk carrying the JSON (rendered map snapshots)
func DecodeMapData(data []byte) (*OccupancyMap, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var jsonBytes []byte
	var err error

	switch {
	case IsPNG(data):
		jsonBytes, err = extractPNGzTXt(data)
		if err != nil {
			return nil, fmt.Errorf("extracting PNG zTXt: %w", err)
		}
	case data[0] == '{':
		jsonBytes = data
	default:
		jsonBytes, err = inflateZlib(data)
		if err != nil {
			return nil, fmt.Errorf("unknown format: not PNG, JSON, or zlib-compressed")
		}
	}

	if len(jsonBytes) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}
	return ParseMapJSON(jsonBytes)
}

// ParseMapJSON parses and validates an OccupancyMap JSON document
func ParseMapJSON(data []byte) (*OccupancyMap, error) {
	var m OccupancyMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// EncodeMapData serializes a map as zlib-compressed JSON, the compact form
// published on the retained map topic.
func EncodeMapData(m *OccupancyMap) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling map: %w", err)
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("compressing map: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing map: %w", err)
	}
	return buf.Bytes(), nil
}

// IsPNG checks if data starts with PNG magic bytes
func IsPNG(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	return data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G'
}

// extractPNGzTXt walks the PNG chunk list (length, type, data, CRC) and
// inflates the first zTXt payload.
func extractPNGzTXt(data []byte) ([]byte, error) {
	pos := 8
	for pos+12 <= len(data) {
		chunkLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		chunkType := string(data[pos+4 : pos+8])
		pos += 8

		if chunkLen < 0 || pos+chunkLen+4 > len(data) {
			return nil, fmt.Errorf("truncated PNG chunk")
		}

		if chunkType == "zTXt" {
			text, err := extractZTXtData(data[pos : pos+chunkLen])
			if err != nil {
				return nil, fmt.Errorf("extracting zTXt data: %w", err)
			}
			return text, nil
		}

		pos += chunkLen + 4
		if chunkType == "IEND" {
			break
		}
	}
	return nil, fmt.Errorf("no zTXt chunk found in PNG")
}

// extractZTXtData parses keyword\0method compressed_text
func extractZTXtData(data []byte) ([]byte, error) {
	nullIdx := bytes.IndexByte(data, 0)
	if nullIdx == -1 {
		return nil, fmt.Errorf("no null terminator in zTXt chunk")
	}
	if nullIdx+1 >= len(data) {
		return nil, fmt.Errorf("truncated zTXt chunk")
	}
	if method := data[nullIdx+1]; method != 0 {
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
	return inflateZlib(data[nullIdx+2:])
}

func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}
	return decompressed, nil
}
