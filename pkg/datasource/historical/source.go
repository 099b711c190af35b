package historical

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/exp/mmap"
)

var ErrEof = errors.New("EOF")

// Source reads fixed-width records of type T from a memory mapped file.
type Source[T record] struct {
	dataSourceName string
	reader         *mmap.ReaderAt
	bufferPool     *sync.Pool
}

func NewSource[T record](dataSourceName string) *Source[T] {
	return &Source[T]{
		dataSourceName: dataSourceName,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buffer := make([]byte, int(unsafe.Sizeof(*new(T))))
				return &buffer
			},
		},
	}
}

func (s *Source[T]) Open() error {
	var err error
	s.reader, err = mmap.Open(s.dataSourceName)
	if err != nil {
		return fmt.Errorf("unable to open data source %q: %w", s.dataSourceName, err)
	}
	return nil
}

func (s *Source[T]) Close() {
	if s.reader != nil {
		_ = s.reader.Close()
	}
}

func (s *Source[T]) Read(index int64, data *T) error {
	buffer := s.bufferPool.Get().(*[]byte)
	defer s.bufferPool.Put(buffer)

	offset := index * int64(len(*buffer))

	n, err := s.reader.ReadAt(*buffer, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("unable to read: %w", err)
	}
	if n < len(*buffer) {
		return ErrEof
	}

	*data = *(*T)(unsafe.Pointer(&(*buffer)[0])) // #nosec G103
	return nil
}

func (s *Source[T]) EntryCount() (int64, error) {
	entrySize := int64(unsafe.Sizeof(*new(T)))
	if s.reader == nil {
		return 0, fmt.Errorf("data source %q is not open", s.dataSourceName)
	}

	totalSize := int64(s.reader.Len())
	if totalSize%entrySize != 0 {
		return 0, fmt.Errorf("size of %q is not a multiple of entry size %d", s.dataSourceName, entrySize)
	}
	return totalSize / entrySize, nil
}

// LowerBound returns the index of the first record stamped at or after ts.
func (s *Source[T]) LowerBound(ts int64) (int64, error) {
	count, err := s.EntryCount()
	if err != nil {
		return 0, err
	}

	var entry T
	low, high := int64(0), count-1
	for low <= high {
		mid := (low + high) / 2
		if err := s.Read(mid, &entry); err != nil {
			return 0, fmt.Errorf("error reading entry at index %d: %w", mid, err)
		}
		if entry.stamp() < ts {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return low, nil
}

// ReadRange collects every record stamped in [from, to].
func (s *Source[T]) ReadRange(from, to int64) ([]T, error) {
	idx, err := s.LowerBound(from)
	if err != nil {
		return nil, err
	}

	var out []T
	for {
		var entry T
		err := s.Read(idx, &entry)
		if errors.Is(err, ErrEof) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if entry.stamp() > to {
			return out, nil
		}
		out = append(out, entry)
		idx++
	}
}

// WriteFile replaces path with records, which must be ascending.
func WriteFile[T record](path string, records []T) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("unable to create %q: %w", tmp, err)
	}

	size := int(unsafe.Sizeof(*new(T)))
	for i := range records {
		raw := unsafe.Slice((*byte)(unsafe.Pointer(&records[i])), size) // #nosec G103
		if _, err := f.Write(raw); err != nil {
			_ = f.Close()
			return fmt.Errorf("unable to write %q: %w", tmp, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("unable to close %q: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
