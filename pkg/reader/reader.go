// Package reader implements the dataset container the specification
// treats as an external collaborator: it opens a named container file and
// returns the raw bit-packed matrix plus attribute/observation/class
// counts. The rest of the engine depends only on the Reader interface, so
// this concrete binary-container format is swappable (e.g. for an HDF5
// reader, as the original LAID implementation uses) without touching
// pkg/dataset, pkg/jnsq, or pkg/setcover.
package reader

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrDatasetNotFound is returned when the named container cannot be opened.
var ErrDatasetNotFound = errors.New("reader: dataset not found")

// ErrMissingAttribute is returned when the container's header omits a
// required metadata field or the data block is truncated.
var ErrMissingAttribute = errors.New("reader: missing required attribute")

const magic = "LAIDv1\x00\x00"

// RawMatrix is the (N, W, data, K, A, C) tuple the specification's §6
// "Dataset reader" interface returns.
type RawMatrix struct {
	N    int
	W    int
	Data []uint64
	K    int
	A    int
	C    int
}

// Reader opens a named dataset within a container file.
type Reader interface {
	Read(path, name string) (*RawMatrix, error)
}

// FileReader reads the self-describing binary container format: an
// 8-byte magic, a little-endian uint32 name length followed by that many
// name bytes, little-endian uint32 fields (A, C, K), a little-endian
// uint64 N, then N*W little-endian uint64 words, where
// W = ceil((A+C)/64). The `name`
// parameter is accepted for interface parity with container formats that
// hold multiple named datasets (e.g. the original HDF5 reader); this
// format holds exactly one dataset per file and name is only checked
// against the header's own embedded name field.
type FileReader struct{}

// Read opens path and returns its raw matrix. name is matched against the
// container's embedded dataset name; pass "" to skip the check.
func (FileReader) Read(path, name string) (*RawMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
		}
		return nil, fmt.Errorf("reader: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %s: truncated header", ErrMissingAttribute, path)
	}
	if string(hdr[:]) != magic {
		return nil, fmt.Errorf("%w: %s: bad magic", ErrMissingAttribute, path)
	}

	var nameLen uint32
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return nil, fmt.Errorf("%w: %s: truncated name length", ErrMissingAttribute, path)
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return nil, fmt.Errorf("%w: %s: truncated name", ErrMissingAttribute, path)
	}
	if name != "" && string(nameBytes) != name {
		return nil, fmt.Errorf("%w: %s: dataset %q not found in container", ErrMissingAttribute, path, name)
	}

	var a, c, k uint32
	var n uint64
	for _, field := range []*uint32{&a, &c, &k} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("%w: %s: truncated counts", ErrMissingAttribute, path)
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: %s: truncated row count", ErrMissingAttribute, path)
	}

	if a == 0 {
		return nil, fmt.Errorf("%w: %s: zero attributes", ErrMissingAttribute, path)
	}
	if k < 2 {
		return nil, fmt.Errorf("%w: %s: fewer than 2 classes", ErrMissingAttribute, path)
	}
	if n < 2 {
		return nil, fmt.Errorf("%w: %s: fewer than 2 observations", ErrMissingAttribute, path)
	}

	w := int((uint64(a+c) + 63) / 64)
	total := n * uint64(w)
	data := make([]uint64, total)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("%w: %s: truncated data block", ErrMissingAttribute, path)
	}

	return &RawMatrix{
		N:    int(n),
		W:    w,
		Data: data,
		K:    int(k),
		A:    int(a),
		C:    int(c),
	}, nil
}
