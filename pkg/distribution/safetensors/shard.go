package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

var (
	// ErrTensorNotFound is returned by Lookup when a shard has no tensor of the
	// requested name.
	ErrTensorNotFound = errors.New("tensor not found in shard")
	// ErrCorruptShard is returned by Open when a shard cannot be parsed.
	ErrCorruptShard = errors.New("corrupt safetensors shard")
)

// Tensor is a named tensor's dtype, shape and raw little-endian bytes.
// Tensors returned by Shard.Lookup reference the shard's mapping and are only
// valid until the shard is closed.
type Tensor struct {
	DType DType
	Shape []int64
	Data  []byte
}

// Elements returns the number of elements described by the shape.
func (t Tensor) Elements() int64 {
	return elements(t.Shape)
}

// ByteSize returns the tensor's footprint: element count times element width.
// Dtypes without a fixed width report the length of the data.
func (t Tensor) ByteSize() int64 {
	if size, ok := t.DType.Size(); ok {
		return t.Elements() * size
	}
	return int64(len(t.Data))
}

// Shard is a read-only, memory-mapped view over one safetensors file.
// Tensor data is never copied out of the mapping.
type Shard struct {
	path      string
	f         *os.File
	data      mmap.MMap
	header    *Header
	dataStart int64
}

// Open maps the file at path and parses its header. Every tensor's offsets are
// checked against the data region, so a successful Open guarantees Lookup can
// only fail with ErrTensorNotFound.
func Open(path string) (*Shard, error) {
	//nolint:gosec // G304: shard paths are resolved by the caller
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shard: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat shard: %w", err)
	}
	if info.Size() < headerLengthSize {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, too small for a header", ErrCorruptShard, path, info.Size())
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("map shard: %w", err)
	}

	s := &Shard{path: path, f: f, data: m}
	if err := s.load(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptShard, path, err)
	}
	return s, nil
}

func (s *Shard) load() error {
	headerLen := binary.LittleEndian.Uint64(s.data[:headerLengthSize])
	if headerLen > maxHeaderLength {
		return fmt.Errorf("header length too large: %d bytes", headerLen)
	}
	end := uint64(headerLengthSize) + headerLen
	if end > uint64(len(s.data)) {
		return fmt.Errorf("header length %d exceeds file size %d", headerLen, len(s.data))
	}

	header, err := parseHeader(s.data[headerLengthSize:end])
	if err != nil {
		return err
	}
	s.dataStart = int64(end) //nolint:gosec // G115: bounded by the mapping length
	if err := header.validate(int64(len(s.data)) - s.dataStart); err != nil {
		return err
	}
	s.header = header
	return nil
}

// Path returns the file the shard was opened from.
func (s *Shard) Path() string {
	return s.path
}

// Names returns the names of all tensors in the shard, sorted.
func (s *Shard) Names() []string {
	return s.header.Names()
}

// Metadata returns the "__metadata__" map of the header, which may be nil.
func (s *Shard) Metadata() map[string]string {
	return s.header.Metadata
}

// Has reports whether the shard holds a tensor called name.
func (s *Shard) Has(name string) bool {
	_, ok := s.header.Tensors[name]
	return ok
}

// Lookup returns the tensor called name. The returned Data aliases the mapping.
func (s *Shard) Lookup(name string) (Tensor, error) {
	info, ok := s.header.Tensors[name]
	if !ok {
		return Tensor{}, fmt.Errorf("%w: %q in %s", ErrTensorNotFound, name, s.path)
	}
	start := s.dataStart + info.DataOffsets[0]
	end := s.dataStart + info.DataOffsets[1]
	shape := make([]int64, len(info.Shape))
	copy(shape, info.Shape)
	return Tensor{
		DType: info.DType,
		Shape: shape,
		Data:  s.data[start:end:end],
	}, nil
}

// Close unmaps and closes the file. It is safe to call more than once.
func (s *Shard) Close() error {
	var errs []error
	if s.data != nil {
		if err := s.data.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("unmap shard: %w", err))
		}
		s.data = nil
	}
	if s.f != nil {
		if err := s.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close shard: %w", err))
		}
		s.f = nil
	}
	return errors.Join(errs...)
}
