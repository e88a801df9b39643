package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// maxGraphLayers bounds the layer count accepted from a snapshot. With the
// smallest allowed level factor this is far beyond any real graph.
const maxGraphLayers = 64

// checkGraphStream walks an uncompressed coder/hnsw export and verifies the
// structure Import trusts blindly: every layer is non-empty, every vector
// has dims components, keys are unique per layer, every node of a layer is
// present in the layer below, and every neighbour key resolves to a node of
// the same layer. It returns the keys of the base layer in stream order.
func checkGraphStream(data []byte, dims int) ([]uint64, error) {
	r := bytes.NewReader(data)
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: graph: %s", ErrCorruptSnapshot, fmt.Sprintf(format, args...))
	}

	// version, M, Ml, EfSearch, distance name
	if _, err := readCount(r); err != nil {
		return nil, corrupt("version: %v", err)
	}
	if _, err := readCount(r); err != nil {
		return nil, corrupt("M: %v", err)
	}
	if _, err := r.Seek(8, io.SeekCurrent); err != nil || r.Len() == 0 {
		return nil, corrupt("truncated parameters")
	}
	if _, err := readCount(r); err != nil {
		return nil, corrupt("efSearch: %v", err)
	}
	nameLen, err := readCount(r)
	if err != nil || nameLen > r.Len() {
		return nil, corrupt("distance name")
	}
	if _, err := r.Seek(int64(nameLen), io.SeekCurrent); err != nil {
		return nil, corrupt("distance name: %v", err)
	}

	nLayers, err := readCount(r)
	if err != nil || nLayers > maxGraphLayers {
		return nil, corrupt("layer count")
	}

	var (
		base  []uint64
		below map[uint64]struct{}
		key   [8]byte
	)
	for layer := 0; layer < nLayers; layer++ {
		nNodes, err := readCount(r)
		if err != nil || nNodes == 0 || nNodes > r.Len()/8 {
			return nil, corrupt("layer %d: node count", layer)
		}

		nodes := make(map[uint64]struct{}, nNodes)
		var links []uint64
		for i := 0; i < nNodes; i++ {
			if _, err := io.ReadFull(r, key[:]); err != nil {
				return nil, corrupt("layer %d node %d: key: %v", layer, i, err)
			}
			k := binary.LittleEndian.Uint64(key[:])
			if _, dup := nodes[k]; dup {
				return nil, corrupt("layer %d: duplicate key %d", layer, k)
			}
			if below != nil {
				if _, ok := below[k]; !ok {
					return nil, corrupt("layer %d: key %d missing from layer below", layer, k)
				}
			}
			nodes[k] = struct{}{}
			if layer == 0 {
				base = append(base, k)
			}

			n, err := readCount(r)
			if err != nil || n != dims {
				return nil, corrupt("layer %d key %d: vector length", layer, k)
			}
			if _, err := r.Seek(int64(dims)*4, io.SeekCurrent); err != nil || r.Len() == 0 {
				return nil, corrupt("layer %d key %d: truncated vector", layer, k)
			}

			nLinks, err := readCount(r)
			if err != nil || nLinks > r.Len()/8 {
				return nil, corrupt("layer %d key %d: neighbour count", layer, k)
			}
			for j := 0; j < nLinks; j++ {
				if _, err := io.ReadFull(r, key[:]); err != nil {
					return nil, corrupt("layer %d key %d: neighbour: %v", layer, k, err)
				}
				links = append(links, binary.LittleEndian.Uint64(key[:]))
			}
		}

		for _, k := range links {
			if _, ok := nodes[k]; !ok {
				return nil, corrupt("layer %d: neighbour %d does not resolve", layer, k)
			}
		}
		below = nodes
	}

	if r.Len() != 0 {
		return nil, corrupt("%d trailing bytes", r.Len())
	}
	return base, nil
}

// readCount reads a non-negative varint as written by coder/hnsw for ints.
func readCount(r *bytes.Reader) (int, error) {
	v, err := binary.ReadVarint(r)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > math.MaxInt32 {
		return 0, fmt.Errorf("count %d out of range", v)
	}
	return int(v), nil
}
