// Package engine assembles scan pipelines: opener -> predicate matcher ->
// paging cursor -> join compositor. It owns no per-scan state itself; every
// Scan call returns an independent scanner owned by exactly one caller.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tessera-db/tessera/internal/config"
	"github.com/tessera-db/tessera/internal/expr"
	"github.com/tessera-db/tessera/internal/filter"
	"github.com/tessera-db/tessera/internal/join"
	"github.com/tessera-db/tessera/internal/scan"
)

//go:generate mockgen -destination=engine_mock.go -package=engine -source=engine.go

var (
	// ErrJoinDisabled means a scan requested a join type the host has
	// switched off.
	ErrJoinDisabled = errors.New("join type disabled")
)

// tableCache resolves precomputed join tables by identifier.
type tableCache interface {
	Table(id string) (*join.Table, error)
}

// sourceOpener opens storage cell sources for spans.
type sourceOpener interface {
	Open(span scan.Span) (scan.CellSource, error)
}

type Engine struct {
	opener   sourceOpener
	cache    tableCache
	tunables *config.Config
}

type Config struct {
	// Opener is the storage layer's cell source capability.
	Opener sourceOpener
	// Cache holds the precomputed join tables; optional when the host
	// never runs joins.
	Cache tableCache
	// Tunables carries the page budget and join-type enablement.
	Tunables *config.Config
}

func (c *Config) validate() error {
	var errGrp []error
	if c.Opener == nil {
		errGrp = append(errGrp, errors.New("source opener cannot be nil"))
	}
	if c.Tunables == nil {
		errGrp = append(errGrp, errors.New("tunables cannot be nil"))
	}
	return errors.Join(errGrp...)
}

// New creates a scan engine.
func New(cfg *Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		opener:   cfg.Opener,
		cache:    cfg.Cache,
		tunables: cfg.Tunables,
	}, nil
}

// ScanRequest is one scan invocation: a key range (or an ordered list of
// exact lookup keys), an optional predicate, a page budget, and the join
// descriptor.
type ScanRequest struct {
	Span        scan.Span
	PointLookup bool
	LookupKeys  [][]byte
	// Predicate filters rows incrementally during the scan.
	Predicate expr.Predicate
	// Budget overrides the configured page budget when positive.
	Budget time.Duration
	// Joins are probed in declared order; PostFilter runs over the
	// composed rows.
	Joins      []join.Spec
	PostFilter expr.Predicate
}

// Scan builds the pipeline for a request and returns its scanner. The
// caller owns the scanner exclusively: markers must be discarded and the
// call repeated, and Next must never run concurrently.
func (e *Engine) Scan(req *ScanRequest) (scan.Scanner, error) {
	budget := req.Budget
	if budget <= 0 {
		budget = e.tunables.ScanBudget
	}
	for _, sp := range req.Joins {
		if !sp.Type.Valid() {
			return nil, fmt.Errorf("%w: %d", join.ErrUnsupportedType, sp.Type)
		}
		if !e.tunables.JoinEnabled(sp.Type) {
			return nil, fmt.Errorf("%w: %s", ErrJoinDisabled, sp.Type)
		}
	}
	if len(req.Joins) > 0 && e.cache == nil {
		return nil, errors.New("scan requested joins but no table cache is configured")
	}

	cursorCfg := &scan.Config{
		Opener:      e.opener,
		Span:        req.Span,
		PointLookup: req.PointLookup,
		LookupKeys:  req.LookupKeys,
		Budget:      budget,
	}
	if req.Predicate != nil {
		matcher, err := filter.NewRowMatcher(req.Predicate)
		if err != nil {
			return nil, fmt.Errorf("build row matcher: %w", err)
		}
		cursorCfg.Matcher = matcher
	}
	cursor, err := scan.New(cursorCfg)
	if err != nil {
		return nil, fmt.Errorf("build scan cursor: %w", err)
	}

	scanID := uuid.NewString()
	if len(req.Joins) == 0 && req.PostFilter == nil {
		log.Debug().
			Str("scan_id", scanID).
			Bool("point_lookup", req.PointLookup).
			Dur("budget", budget).
			Msg("starting scan")
		return cursor, nil
	}

	compositor, err := join.New(&join.Config{
		Source:      cursor,
		Joins:       req.Joins,
		Cache:       e.cache,
		PostFilter:  req.PostFilter,
		Budget:      budget,
		MaxBuffered: e.tunables.MaxJoinBuffer,
	})
	if err != nil {
		_ = cursor.Close()
		return nil, fmt.Errorf("build join compositor: %w", err)
	}
	log.Debug().
		Str("scan_id", scanID).
		Bool("point_lookup", req.PointLookup).
		Int("joins", len(req.Joins)).
		Dur("budget", budget).
		Msg("starting join scan")
	return compositor, nil
}
