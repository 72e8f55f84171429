package sqlite

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wbrown/janus-cep/cep"
	"github.com/wbrown/janus-cep/cep/cache"
	"github.com/wbrown/janus-cep/cep/engine"
	"github.com/wbrown/janus-cep/cep/inference"
)

// Provider serves static predicates whose tuple is declared Static from a
// SQLite database. It owns the connection pool and, depending on the
// configured ownership, one shared cache or a cache per node.
type Provider struct {
	db       *sql.DB
	cfg      Config
	logger   *zap.Logger
	shared   *cache.CachedFetcher[CacheKey, *Entry]
	fetchers []*cache.CachedFetcher[CacheKey, *Entry]
}

// NewProvider opens the database and sizes the pool
func NewProvider(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", cfg.DBFile)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.DBFile, err)
	}
	db.SetMaxOpenConns(cfg.PoolSize)

	p := &Provider{db: db, cfg: cfg, logger: logger}
	if cfg.CacheOwnership != PerPredicate {
		p.shared = p.newFetcher()
	}
	return p, nil
}

// Close releases the connection pool
func (p *Provider) Close() error { return p.db.Close() }

// DB exposes the pool, mostly for fixtures in tests
func (p *Provider) DB() *sql.DB { return p.db }

// CacheStats sums the hit/miss counters across every cache the provider
// has handed out.
func (p *Provider) CacheStats() cache.Stats {
	var total cache.Stats
	for _, f := range p.fetchers {
		s := f.Stats()
		total.Hits += s.Hits
		total.Misses += s.Misses
	}
	return total
}

// Provide accepts static predicates over static tuples and declines
// everything else.
func (p *Provider) Provide(idx int, tuple *cep.TupleDeclaration, pred *cep.Predicate, paramTypes inference.ParamTypes) (engine.Node, error) {
	if tuple.Kind != cep.StaticTuple {
		return nil, nil
	}
	switch pred.Kind.(type) {
	case *cep.OrderedStatic, *cep.UnorderedStatic, *cep.StaticAggregate, *cep.StaticNegation:
	default:
		return nil, nil
	}

	fetcher := p.shared
	if fetcher == nil {
		fetcher = p.newFetcher()
	}
	return newDriver(idx, tuple, pred, paramTypes, p.db, fetcher, p.logger)
}

func (p *Provider) newFetcher() *cache.CachedFetcher[CacheKey, *Entry] {
	var c cache.Cache[CacheKey, *Entry]
	switch p.cfg.CacheType {
	case CacheDummy:
		c = cache.NewDummy[CacheKey, *Entry]()
	case CacheCollision:
		c = cache.NewCollision[CacheKey, *Entry](p.cfg.CacheSize)
	case CacheLruSize:
		c = cache.NewLruSize[CacheKey, *Entry](p.cfg.CacheSize)
	case CacheGdsf:
		c = cache.NewGdsf[CacheKey, *Entry](p.cfg.CacheSize)
	case CacheLru:
		c = cache.NewLru[CacheKey, *Entry](p.cfg.CacheSize)
	default:
		c = cache.NewLru[CacheKey, *Entry](p.cfg.CacheSize)
	}
	f := cache.NewCachedFetcher(c)
	p.fetchers = append(p.fetchers, f)
	return f
}
