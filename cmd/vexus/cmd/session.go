package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/vexus/internal/config"
	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/store"
	"github.com/Aman-CERP/vexus/internal/vecbuf"
)

// session is one open store, of either variant, plus the config it came from.
type session struct {
	dir     string
	cfg     *config.Config
	paths   store.Paths
	tags    *store.TagIndex
	ids     *store.Index
	created bool
}

// hit is a search result of either variant.
type hit struct {
	Tag      string  `json:"tag,omitempty"`
	Label    uint64  `json:"label"`
	Distance float32 `json:"distance"`
	Score    float32 `json:"score"`
}

// loadConfig loads the data directory config and applies flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.dir)
	if err != nil {
		return nil, err
	}
	if flags.keyed != "" {
		cfg.Index.Keyed = flags.keyed
	}
	if flags.dimensions > 0 {
		cfg.Index.Dimensions = flags.dimensions
	}
	if flags.capacity > 0 {
		cfg.Index.Capacity = flags.capacity
	}
	if err := cfg.Validate(); err != nil {
		return nil, verrors.ConfigError("invalid flags", err)
	}
	return cfg, nil
}

// openSession loads the store from the data directory. When no index exists
// yet and create is set, a new empty store is created instead.
func openSession(flags *globalFlags, create bool) (*session, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	s := &session{dir: flags.dir, cfg: cfg, paths: cfg.Paths()}

	if s.paths.Exists() {
		return s, s.load()
	}
	if !create {
		return nil, verrors.New(verrors.ErrCodeFileNotFound, "no index found", nil).
			WithDetail("path", s.paths.Index).
			WithSuggestion("run 'vexus create --dimensions N' first")
	}
	return s, s.create()
}

func (s *session) load() error {
	var err error
	opts := []store.Option{store.WithLogger(slog.Default())}
	if s.tagKeyed() {
		s.tags, err = store.LoadTagIndex(s.paths, s.cfg.StoreConfig(), opts...)
	} else {
		s.ids, err = store.Load(s.paths, s.cfg.StoreConfig(), opts...)
	}
	return err
}

func (s *session) create() error {
	if s.cfg.Index.Dimensions <= 0 {
		return verrors.ValidationError("dimensions are required to create an index", nil).
			WithSuggestion("pass --dimensions N or set index.dimensions in .vexus.yaml")
	}

	var err error
	opts := []store.Option{store.WithLogger(slog.Default())}
	if s.tagKeyed() {
		s.tags, err = store.NewTagIndex(s.cfg.StoreConfig(), opts...)
	} else {
		s.ids, err = store.New(s.cfg.StoreConfig(), opts...)
	}
	s.created = err == nil
	return err
}

func (s *session) tagKeyed() bool {
	return s.cfg.Index.Keyed == config.KeyedTag
}

func (s *session) requireTag(op string) error {
	if s.tags == nil {
		return verrors.ValidationError(fmt.Sprintf("%s needs a tag-keyed index", op), nil).
			WithSuggestion("use --keyed tag, or the label-based command for id-keyed indexes")
	}
	return nil
}

func (s *session) requireID(op string) error {
	if s.ids == nil {
		return verrors.ValidationError(fmt.Sprintf("%s needs an id-keyed index", op), nil).
			WithSuggestion("use --keyed id")
	}
	return nil
}

func (s *session) dimensions() int {
	if s.tags != nil {
		return s.tags.Dimensions()
	}
	return s.ids.Dimensions()
}

func (s *session) stats() (store.Stats, error) {
	if s.tags != nil {
		return s.tags.Stats()
	}
	return s.ids.Stats()
}

func (s *session) search(ctx context.Context, query []float32, k int) ([]hit, error) {
	if s.tags != nil {
		results, err := s.tags.Search(ctx, query, k)
		if err != nil {
			return nil, err
		}
		hits := make([]hit, len(results))
		for i, r := range results {
			hits[i] = hit{Tag: r.Tag, Label: r.Label, Distance: r.Distance, Score: r.Score}
		}
		return hits, nil
	}

	results, err := s.ids.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]hit, len(results))
	for i, r := range results {
		hits[i] = hit{Label: r.Label, Distance: r.Distance, Score: r.Score}
	}
	return hits, nil
}

// searchPacked runs search on a packed little-endian float32 query.
func (s *session) searchPacked(ctx context.Context, raw []byte, k int) ([]hit, error) {
	if s.tags != nil {
		results, err := s.tags.SearchBytes(ctx, raw, k)
		if err != nil {
			return nil, err
		}
		hits := make([]hit, len(results))
		for i, r := range results {
			hits[i] = hit{Tag: r.Tag, Label: r.Label, Distance: r.Distance, Score: r.Score}
		}
		return hits, nil
	}

	query, err := vecbuf.Decode(raw)
	if err != nil {
		return nil, verrors.ValidationError("invalid query buffer", err)
	}
	return s.search(ctx, query, k)
}

// saveTo persists the store to paths.
func (s *session) saveTo(paths store.Paths) error {
	if s.tags != nil {
		return s.tags.Save(paths)
	}
	return s.ids.Save(paths)
}

// save persists the store in place. The first save of a newly created
// store also pins its config in the data directory.
func (s *session) save() error {
	if err := s.saveTo(s.paths); err != nil {
		return err
	}
	if s.created {
		if err := pinConfig(s.dir, s.cfg, false); err != nil {
			return err
		}
		s.created = false
	}
	return nil
}

func (s *session) close() {
	if s.tags != nil {
		_ = s.tags.Close()
	}
	if s.ids != nil {
		_ = s.ids.Close()
	}
}

// annotateBatch copies the failing batch position onto the underlying
// structured error so the CLI prints it.
func annotateBatch(err error) error {
	var be *store.BatchError
	if !errors.As(err, &be) {
		return err
	}
	var ve *verrors.VexusError
	if errors.As(be.Err, &ve) {
		ve.WithDetail("batch_index", fmt.Sprint(be.Index))
		if be.Tag != "" {
			ve.WithDetail("tag", be.Tag)
		}
		return ve
	}
	return err
}
