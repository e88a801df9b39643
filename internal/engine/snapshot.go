package engine

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

var snapshotMagic = [4]byte{'V', 'X', 'S', 'E'}

// SnapshotVersion is the snapshot format this package writes and reads.
const SnapshotVersion uint32 = 1

// Header is the fixed-size prefix of an engine snapshot.
//
// Format overview (little endian):
//
//	[4B magic "VXSE"] [4B version]
//	[4B dims] [1B metric] [4B M] [4B efSearch] [4B efConstruction] [8B ml bits]
//	[8B capacity] [8B count]
//	[8B payloadLen] [4B payload CRC32]
//	[payloadLen bytes zstd(hnsw.Graph.Export)]
type Header struct {
	Version        uint32
	Dimensions     int
	Metric         Metric
	M              int
	EfSearch       int
	EfConstruction int
	Ml             float64
	Capacity       int
	Count          int
}

type rawHeader struct {
	Magic          [4]byte
	Version        uint32
	Dims           uint32
	Metric         uint8
	M              uint32
	EfSearch       uint32
	EfConstruction uint32
	Ml             float64
	Capacity       uint64
	Count          uint64
	PayloadLen     uint64
	PayloadCRC     uint32
}

func metricCode(m Metric) uint8 {
	if m == MetricCosine {
		return 1
	}
	return 0
}

func metricFromCode(c uint8) (Metric, error) {
	switch c {
	case 0:
		return MetricL2Sq, nil
	case 1:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("%w: unknown metric code %d", ErrCorruptSnapshot, c)
	}
}

// WriteTo writes a snapshot of the engine to w. A graph carrying stale
// nodes is not written as is; a fresh graph of the live vectors is exported
// instead, leaving the engine itself untouched.
func (e *HNSW) WriteTo(w io.Writer) (int64, error) {
	var payload bytes.Buffer
	if len(e.vecs) > 0 {
		graph := e.graph
		if e.stale() > 0 {
			graph = e.buildGraph()
		}
		enc, err := zstd.NewWriter(&payload, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return 0, fmt.Errorf("engine: create compressor: %w", err)
		}
		if err := graph.Export(enc); err != nil {
			_ = enc.Close()
			return 0, fmt.Errorf("engine: export graph: %w", err)
		}
		if err := enc.Close(); err != nil {
			return 0, fmt.Errorf("engine: flush compressor: %w", err)
		}
	}

	h := rawHeader{
		Magic:          snapshotMagic,
		Version:        SnapshotVersion,
		Dims:           uint32(e.opts.Dimensions),
		Metric:         metricCode(e.opts.Metric),
		M:              uint32(e.opts.M),
		EfSearch:       uint32(e.opts.EfSearch),
		EfConstruction: uint32(e.opts.EfConstruction),
		Ml:             e.opts.Ml,
		Capacity:       uint64(e.capacity),
		Count:          uint64(len(e.vecs)),
		PayloadLen:     uint64(payload.Len()),
		PayloadCRC:     crc32.ChecksumIEEE(payload.Bytes()),
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return 0, fmt.Errorf("engine: write header: %w", err)
	}
	n, err := bw.Write(payload.Bytes())
	if err != nil {
		return 0, fmt.Errorf("engine: write payload: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("engine: flush snapshot: %w", err)
	}
	return int64(binary.Size(h)) + int64(n), nil
}

// Save writes a snapshot to path, truncating any existing file.
// Atomic replacement is the caller's concern.
func (e *HNSW) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("engine: create snapshot: %w", err)
	}
	if _, err := e.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("engine: sync snapshot: %w", err)
	}
	return f.Close()
}

// Load replaces the engine contents with the snapshot at path.
// The file is read whole into memory. The snapshot must have been written
// with the same dimensions as the engine.
func (e *HNSW) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("engine: read snapshot: %w", err)
	}
	return e.load(data)
}

func (e *HNSW) load(data []byte) error {
	h, payload, err := decodeHeader(data)
	if err != nil {
		return err
	}
	if h.Dimensions != e.opts.Dimensions {
		return fmt.Errorf("%w: snapshot has %d dimensions, engine has %d",
			ErrInvalidOptions, h.Dimensions, e.opts.Dimensions)
	}

	e.opts.Metric = h.Metric
	e.opts.M = h.M
	e.opts.EfSearch = h.EfSearch
	e.opts.EfConstruction = h.EfConstruction
	e.opts.Ml = h.Ml

	g := e.newGraph()
	var keys []uint64
	if len(payload) > 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return fmt.Errorf("engine: create decompressor: %w", err)
		}
		raw, err := dec.DecodeAll(payload, nil)
		dec.Close()
		if err != nil {
			return fmt.Errorf("%w: decompress payload: %v", ErrCorruptSnapshot, err)
		}

		if keys, err = checkGraphStream(raw, h.Dimensions); err != nil {
			return err
		}
		if err := g.Import(bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("%w: import graph: %v", ErrCorruptSnapshot, err)
		}
	}
	if len(keys) != h.Count {
		return fmt.Errorf("%w: header count %d, graph has %d", ErrCorruptSnapshot, h.Count, len(keys))
	}

	vecs := make(map[uint64][]float32, len(keys))
	for _, key := range keys {
		v, _ := g.Lookup(key)
		vecs[key] = v
	}

	e.graph = g
	e.vecs = vecs
	e.dirty = make(map[uint64]struct{})
	e.capacity = max(h.Capacity, len(vecs))
	return nil
}

// ReadSnapshotHeader reads only the header of the snapshot at path.
// It is used to discover the stored dimensions before constructing an engine.
func ReadSnapshotHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("engine: open snapshot: %w", err)
	}
	defer f.Close()

	var raw rawHeader
	if err := binary.Read(f, binary.LittleEndian, &raw); err != nil {
		return Header{}, fmt.Errorf("%w: read header: %v", ErrCorruptSnapshot, err)
	}
	return raw.header()
}

// LoadHNSW constructs an engine directly from a snapshot file, taking the
// dimensions and options recorded in it.
func LoadHNSW(path string) (*HNSW, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read snapshot: %w", err)
	}
	h, _, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	e, err := NewHNSW(Options{
		Dimensions:     h.Dimensions,
		Metric:         h.Metric,
		M:              h.M,
		EfSearch:       h.EfSearch,
		EfConstruction: h.EfConstruction,
		Ml:             h.Ml,
	}, 0)
	if err != nil {
		return nil, err
	}
	if err := e.load(data); err != nil {
		return nil, err
	}
	return e, nil
}

func (r rawHeader) header() (Header, error) {
	if r.Magic != snapshotMagic {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrCorruptSnapshot, r.Magic[:])
	}
	if r.Version != SnapshotVersion {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, r.Version)
	}
	metric, err := metricFromCode(r.Metric)
	if err != nil {
		return Header{}, err
	}
	if r.Dims == 0 {
		return Header{}, fmt.Errorf("%w: zero dimensions", ErrCorruptSnapshot)
	}
	return Header{
		Version:        r.Version,
		Dimensions:     int(r.Dims),
		Metric:         metric,
		M:              int(r.M),
		EfSearch:       int(r.EfSearch),
		EfConstruction: int(r.EfConstruction),
		Ml:             r.Ml,
		Capacity:       int(r.Capacity),
		Count:          int(r.Count),
	}, nil
}

// decodeHeader parses and validates the header, returning the payload slice.
func decodeHeader(data []byte) (Header, []byte, error) {
	var raw rawHeader
	size := binary.Size(raw)
	if len(data) < size {
		return Header{}, nil, fmt.Errorf("%w: %d bytes is shorter than header", ErrCorruptSnapshot, len(data))
	}
	if err := binary.Read(bytes.NewReader(data[:size]), binary.LittleEndian, &raw); err != nil {
		return Header{}, nil, fmt.Errorf("%w: read header: %v", ErrCorruptSnapshot, err)
	}
	h, err := raw.header()
	if err != nil {
		return Header{}, nil, err
	}

	payload := data[size:]
	if uint64(len(payload)) != raw.PayloadLen {
		return Header{}, nil, fmt.Errorf("%w: payload is %d bytes, header says %d",
			ErrCorruptSnapshot, len(payload), raw.PayloadLen)
	}
	if crc32.ChecksumIEEE(payload) != raw.PayloadCRC {
		return Header{}, nil, fmt.Errorf("%w: payload checksum mismatch", ErrCorruptSnapshot)
	}
	return h, payload, nil
}
