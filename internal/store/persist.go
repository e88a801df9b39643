package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/vexus/internal/engine"
	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/mapping"
)

// Default artifact file names inside a data directory.
const (
	DefaultIndexFile   = "vexus.index"
	DefaultMappingFile = "vexus.map"
)

// Paths locates the persisted artifacts of a store. Mapping is only used by
// TagIndex.
type Paths struct {
	Index   string
	Mapping string
}

// DefaultPaths returns the standard artifact paths inside dir.
func DefaultPaths(dir string) Paths {
	return Paths{
		Index:   filepath.Join(dir, DefaultIndexFile),
		Mapping: filepath.Join(dir, DefaultMappingFile),
	}
}

// Exists reports whether the index artifact is present.
func (p Paths) Exists() bool {
	_, err := os.Stat(p.Index)
	return err == nil
}

// writeAtomic produces path by calling write on <path>.tmp and renaming it
// over path. The temp file is removed on any failure.
func writeAtomic(path string, write func(tmp string) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return verrors.IOError("failed to create directory", err).WithDetail("path", path)
	}

	tmp := path + ".tmp"
	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return verrors.IOError("failed to rename artifact", err).WithDetail("path", path)
	}
	return nil
}

// writeFileSync writes data to path and fsyncs it before close.
func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// saveEngine writes the engine snapshot via temp+rename. Callers hold the read lock.
func saveEngine(eng engine.Engine, path string) error {
	return writeAtomic(path, func(tmp string) error {
		if err := eng.Save(tmp); err != nil {
			return verrors.IOError("failed to save index", err).WithDetail("path", path)
		}
		return nil
	})
}

// Save writes the engine snapshot to paths.Index using temp+rename while
// holding the read lock. Readers continue during the save; writers wait.
func (x *Index) Save(paths Paths) error {
	lock := newSaveLock(paths.Index)
	if err := lock.Lock(); err != nil {
		return verrors.IOError("failed to lock index for save", err)
	}
	defer func() { _ = lock.Unlock() }()

	err := x.c.read("save", func() error {
		return saveEngine(x.c.eng, paths.Index)
	})
	if err != nil {
		return err
	}

	x.c.logger.Info("index_saved", slog.String("index", paths.Index))
	return nil
}

// Save writes the mapping and then the engine snapshot, each through its own
// temp+rename. Both are taken under the read locks, so within a process they
// describe the same state; a crash between the two renames can still leave
// the mapping newer than the snapshot.
func (t *TagIndex) Save(paths Paths) error {
	if paths.Mapping == "" {
		return verrors.ValidationError("mapping path is required for a tag index", nil)
	}

	lock := newSaveLock(paths.Index)
	if err := lock.Lock(); err != nil {
		return verrors.IOError("failed to lock index for save", err)
	}
	defer func() { _ = lock.Unlock() }()

	t.mapMu.RLock()
	defer t.mapMu.RUnlock()

	err := t.c.read("save", func() error {
		data, err := t.m.MarshalBinary()
		if err != nil {
			return verrors.IOError("failed to serialize mapping", err)
		}

		if err := writeAtomic(paths.Mapping, func(tmp string) error {
			if err := writeFileSync(tmp, data); err != nil {
				return verrors.IOError("failed to write mapping", err).WithDetail("path", paths.Mapping)
			}
			return nil
		}); err != nil {
			return err
		}

		return saveEngine(t.c.eng, paths.Index)
	})
	if err != nil {
		return err
	}

	t.c.logger.Info("index_saved",
		slog.String("index", paths.Index),
		slog.String("mapping", paths.Mapping),
		slog.Int("tags", t.m.Len()))
	return nil
}

// loadEngine constructs an engine from the snapshot at path. When
// cfg.Dimensions is zero the stored dimension is used; otherwise it must
// match. Capacity is raised to cfg.Capacity when the snapshot holds less.
func loadEngine(path string, cfg Config, o options) (engine.Engine, error) {
	h, err := engine.ReadSnapshotHeader(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, verrors.New(verrors.ErrCodeFileNotFound, "index file not found", err).
				WithDetail("path", path)
		}
		if errors.Is(err, engine.ErrCorruptSnapshot) {
			return nil, verrors.CorruptError("failed to read index header", err).WithDetail("path", path)
		}
		return nil, verrors.IOError("failed to read index", err).WithDetail("path", path)
	}

	if cfg.Dimensions == 0 {
		cfg.Dimensions = h.Dimensions
	}
	if h.Dimensions != cfg.Dimensions {
		return nil, verrors.DimensionMismatch(cfg.Dimensions, h.Dimensions).
			WithDetail("path", path)
	}

	opts := cfg.engineOptions()
	opts.Metric = h.Metric

	eng, err := o.newEngine(opts, 0)
	if err != nil {
		return nil, verrors.ConstructionError("failed to create index", err)
	}
	if err := eng.Load(path); err != nil {
		if errors.Is(err, engine.ErrCorruptSnapshot) {
			return nil, verrors.CorruptError("failed to load index", err).WithDetail("path", path)
		}
		return nil, verrors.IOError("failed to load index", err).WithDetail("path", path)
	}

	if cfg.Capacity > eng.Capacity() {
		if err := eng.Reserve(cfg.Capacity); err != nil {
			return nil, verrors.ConstructionError("failed to reserve capacity", err).
				WithDetail("capacity", fmt.Sprint(cfg.Capacity))
		}
	}
	return eng, nil
}

// Load reconstructs an identifier-keyed store from paths.Index.
func Load(paths Paths, cfg Config, opts ...Option) (*Index, error) {
	o := buildOptions(opts)

	eng, err := loadEngine(paths.Index, cfg, o)
	if err != nil {
		return nil, err
	}

	o.logger.Info("index_loaded",
		slog.String("index", paths.Index),
		slog.Int("count", eng.Size()),
		slog.Int("capacity", eng.Capacity()))
	return &Index{c: newCore(eng, o.logger)}, nil
}

// LoadTagIndex reconstructs a tag-keyed store from both artifacts. The
// label counter resumes at max(label)+1.
func LoadTagIndex(paths Paths, cfg Config, opts ...Option) (*TagIndex, error) {
	o := buildOptions(opts)

	data, err := os.ReadFile(paths.Mapping)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, verrors.New(verrors.ErrCodeFileNotFound, "mapping file not found", err).
				WithDetail("path", paths.Mapping)
		}
		return nil, verrors.IOError("failed to read mapping", err).WithDetail("path", paths.Mapping)
	}
	m, err := mapping.Unmarshal(data)
	if err != nil {
		return nil, verrors.CorruptError("failed to deserialize mapping", err).
			WithDetail("path", paths.Mapping)
	}

	eng, err := loadEngine(paths.Index, cfg, o)
	if err != nil {
		return nil, err
	}

	o.logger.Info("index_loaded",
		slog.String("index", paths.Index),
		slog.String("mapping", paths.Mapping),
		slog.Int("count", eng.Size()),
		slog.Int("tags", m.Len()),
		slog.Int("capacity", eng.Capacity()))
	return &TagIndex{m: m, c: newCore(eng, o.logger)}, nil
}

// ReadDimensions returns the dimension recorded in an index snapshot, or 0
// if the snapshot does not exist yet.
func ReadDimensions(indexPath string) (int, error) {
	h, err := engine.ReadSnapshotHeader(indexPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return h.Dimensions, nil
}
