package safetensors

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// WriteFile writes tensors to a new safetensors file at path and returns the
// number of bytes written.
//
// Tensors are laid out in name order with contiguous offsets. The file is
// staged next to path with an ".incomplete" suffix and only renamed into place
// once fully written and synced; on any failure the staged file is removed and
// path is left untouched.
func WriteFile(path string, tensors map[string]Tensor, metadata map[string]string) (int64, error) {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := &Header{
		Metadata: metadata,
		Tensors:  make(map[string]TensorInfo, len(tensors)),
	}
	var offset int64
	for _, name := range names {
		t := tensors[name]
		size := int64(len(t.Data))
		header.Tensors[name] = TensorInfo{
			DType:       t.DType,
			Shape:       t.Shape,
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := header.encode()
	if err != nil {
		return 0, err
	}

	staged := incompletePath(path)
	f, err := createFile(staged)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", staged, err)
	}

	written, err := writeTo(f, headerJSON, names, tensors)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(staged)
		return 0, fmt.Errorf("write %s: %w", path, err)
	}

	if err := os.Rename(staged, path); err != nil {
		_ = os.Remove(staged)
		return 0, fmt.Errorf("rename %s: %w", staged, err)
	}
	return written, nil
}

func writeTo(f *os.File, headerJSON []byte, names []string, tensors map[string]Tensor) (int64, error) {
	w := bufio.NewWriterSize(f, 1<<20)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return 0, fmt.Errorf("write header length: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	written := int64(headerLengthSize + len(headerJSON))
	for _, name := range names {
		n, err := w.Write(tensors[name].Data)
		if err != nil {
			return 0, fmt.Errorf("write tensor %q: %w", name, err)
		}
		written += int64(n)
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("flush: %w", err)
	}
	return written, nil
}

// createFile is a wrapper around os.Create that creates any parent directories as needed.
func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create parent directory %q: %w", filepath.Dir(path), err)
	}
	return os.Create(path)
}

// incompletePath returns the staging path for the given path.
func incompletePath(path string) string {
	return path + ".incomplete"
}
