package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/store"
	"github.com/Aman-CERP/vexus/internal/vecbuf"
)

// DefaultBuffer is the number of rows read ahead of the ingest loop.
const DefaultBuffer = 256

// DefaultProgressEvery is how many scanned rows pass between progress reports.
const DefaultProgressEvery = 1000

// Request selects the rows to recover.
type Request struct {
	Category Category
	Filter   string
}

// Result summarises a recovery run.
type Result struct {
	Scanned  int `json:"scanned"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Option configures Recover.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	buffer        int
	progress      func(Result)
	progressEvery int
}

// WithLogger sets the logger for recovery events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBuffer sets how many rows may be read ahead of the ingest loop.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithProgress calls fn with the running counts every n scanned rows.
// fn runs on the ingest goroutine while the store's write lock is held, so
// it must not call back into the store.
func WithProgress(n int, fn func(Result)) Option {
	return func(o *options) {
		o.progress = fn
		if n > 0 {
			o.progressEvery = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), buffer: DefaultBuffer, progressEvery: DefaultProgressEvery}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Recover streams rows from src into idx. A producer goroutine reads the
// source while the ingest loop holds the store's write lock for the whole
// run, so no other writer interleaves with the bulk load.
//
// Rows whose blob length is not Dimensions*4 bytes, or whose id cannot be a
// label, are skipped and counted. Source and engine failures abort the run;
// vectors inserted before the failure stay in the store.
func Recover(ctx context.Context, idx *store.Index, src Source, req Request, opts ...Option) (Result, error) {
	o := buildOptions(opts)
	start := time.Now()

	o.logger.Info("recovery_started",
		slog.String("category", string(req.Category)),
		slog.String("filter", req.Filter),
		slog.Int("dimensions", idx.Dimensions()))

	it, err := src.Rows(ctx, req.Category, req.Filter)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = it.Close() }()

	rows := make(chan Row, o.buffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rows)
		for it.Next() {
			select {
			case rows <- it.Row():
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		if err := it.Err(); err != nil {
			return verrors.New(verrors.ErrCodeSourceQuery, "failed to read recovery rows", err)
		}
		return nil
	})

	var res Result
	g.Go(func() error {
		return idx.Ingest(gctx, func(ins store.Inserter) error {
			dims := ins.Dimensions()
			for row := range rows {
				res.Scanned++
				if err := ingestRow(ins, row, dims, &res); err != nil {
					return err
				}
				if o.progress != nil && res.Scanned%o.progressEvery == 0 {
					o.progress(res)
				}
			}
			return nil
		})
	})

	err = g.Wait()

	if res.Skipped > 0 {
		o.logger.Warn("recovery_rows_skipped",
			slog.Int("skipped", res.Skipped),
			slog.Int("expected_bytes", idx.Dimensions()*vecbuf.Float32Size))
	}
	if err != nil {
		o.logger.Error("recovery_failed",
			slog.Int("inserted", res.Inserted),
			slog.String("error", err.Error()))
		return res, err
	}

	o.logger.Info("recovery_completed",
		slog.Int("scanned", res.Scanned),
		slog.Int("inserted", res.Inserted),
		slog.Int("skipped", res.Skipped),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

// ingestRow inserts one row, or counts it as skipped when its id or blob
// size cannot belong to the store.
func ingestRow(ins store.Inserter, row Row, dims int, res *Result) error {
	if row.ID < 0 {
		res.Skipped++
		return nil
	}
	vec, err := vecbuf.DecodeDim(row.Vector, dims)
	if err != nil {
		res.Skipped++
		return nil
	}
	if err := ins.Insert(uint64(row.ID), vec); err != nil {
		return withRowID(err, row.ID)
	}
	res.Inserted++
	return nil
}

func withRowID(err error, id int64) error {
	var ve *verrors.VexusError
	if errors.As(err, &ve) {
		return ve.WithDetail("row_id", fmt.Sprint(id))
	}
	return verrors.EngineError("failed to insert recovered vector", err).
		WithDetail("row_id", fmt.Sprint(id))
}
