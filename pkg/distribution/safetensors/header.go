// Package safetensors reads and writes safetensors tensor stores.
//
// A safetensors file is laid out as:
//
//	[8 bytes: header length (uint64 LE)]
//	[header length bytes: JSON header]
//	[tensor data: raw bytes]
//
// The JSON header maps tensor names to their dtype, shape and data offsets
// (relative to the start of the data region). The optional "__metadata__" key
// holds a string to string map.
package safetensors

import (
	"encoding/json"
	"fmt"
	"sort"
)

const (
	headerLengthSize = 8
	// maxHeaderLength guards against garbage length prefixes.
	maxHeaderLength = 100 * 1024 * 1024
	metadataKey     = "__metadata__"
	headerAlignment = 8
)

// DType is a safetensors element type.
type DType string

// Standard safetensors dtypes.
const (
	Bool   DType = "BOOL"
	U8     DType = "U8"
	I8     DType = "I8"
	F8E5M2 DType = "F8_E5M2"
	F8E4M3 DType = "F8_E4M3"
	I16    DType = "I16"
	U16    DType = "U16"
	F16    DType = "F16"
	BF16   DType = "BF16"
	I32    DType = "I32"
	U32    DType = "U32"
	F32    DType = "F32"
	F64    DType = "F64"
	I64    DType = "I64"
	U64    DType = "U64"
)

var dtypeSizes = map[DType]int64{
	Bool:   1,
	U8:     1,
	I8:     1,
	F8E5M2: 1,
	F8E4M3: 1,
	I16:    2,
	U16:    2,
	F16:    2,
	BF16:   2,
	I32:    4,
	U32:    4,
	F32:    4,
	F64:    8,
	I64:    8,
	U64:    8,
}

// Size returns the byte width of one element. The second return value is false
// for dtypes without a known fixed width.
func (d DType) Size() (int64, bool) {
	size, ok := dtypeSizes[d]
	return size, ok
}

// TensorInfo is a single tensor entry of the JSON header.
type TensorInfo struct {
	DType       DType    `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end)
}

// Len returns the number of data bytes the entry spans.
func (ti TensorInfo) Len() int64 {
	return ti.DataOffsets[1] - ti.DataOffsets[0]
}

// Header is the decoded JSON header of a safetensors file.
type Header struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo
}

// Names returns the tensor names in sorted order.
func (h *Header) Names() []string {
	names := make([]string, 0, len(h.Tensors))
	for name := range h.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseHeader(b []byte) (*Header, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse JSON header: %w", err)
	}

	h := &Header{Tensors: make(map[string]TensorInfo, len(raw))}
	for name, value := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(value, &h.Metadata); err != nil {
				return nil, fmt.Errorf("parse %s: %w", metadataKey, err)
			}
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, fmt.Errorf("parse tensor %q: %w", name, err)
		}
		h.Tensors[name] = info
	}
	return h, nil
}

// validate checks that every tensor lies inside a data region of dataLen bytes.
func (h *Header) validate(dataLen int64) error {
	for name, info := range h.Tensors {
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start || end > dataLen {
			return fmt.Errorf("tensor %q has data offsets [%d, %d] outside data region of %d bytes",
				name, start, end, dataLen)
		}
		for i, dim := range info.Shape {
			if dim < 0 {
				return fmt.Errorf("tensor %q has negative dimension %d at index %d", name, dim, i)
			}
		}
	}
	return nil
}

// encode serializes the header and pads it with spaces to an 8 byte boundary
// so the data region stays aligned.
func (h *Header) encode() ([]byte, error) {
	doc := make(map[string]interface{}, len(h.Tensors)+1)
	if len(h.Metadata) > 0 {
		doc[metadataKey] = h.Metadata
	}
	for name, info := range h.Tensors {
		shape := info.Shape
		if shape == nil {
			shape = []int64{}
		}
		doc[name] = TensorInfo{DType: info.DType, Shape: shape, DataOffsets: info.DataOffsets}
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	if rem := len(b) % headerAlignment; rem != 0 {
		for i := 0; i < headerAlignment-rem; i++ {
			b = append(b, ' ')
		}
	}
	return b, nil
}

func elements(shape []int64) int64 {
	n := int64(1)
	for _, dim := range shape {
		n *= dim
	}
	return n
}
