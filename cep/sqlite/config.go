// Package sqlite serves static predicates from a SQLite database: each
// predicate compiles to one named-parameter statement, executed through a
// pooled connection and fronted by a pluggable result cache.
package sqlite

// CacheOwnership selects whether nodes share one cache instance or each
// own a private one.
type CacheOwnership string

const (
	// Shared uses a single process-wide cache for every node
	Shared CacheOwnership = "shared"
	// PerPredicate constructs one cache per static-query node
	PerPredicate CacheOwnership = "per_predicate"
)

// CacheType selects the eviction policy
type CacheType string

const (
	CacheDummy     CacheType = "dummy"
	CacheCollision CacheType = "collision"
	CacheLru       CacheType = "lru"
	CacheLruSize   CacheType = "lru_size"
	CacheGdsf      CacheType = "gdsf"
)

// Config configures the SQLite provider
type Config struct {
	// DBFile is the path of the SQLite database
	DBFile string `yaml:"db_file"`
	// PoolSize bounds the concurrently open connections
	PoolSize int `yaml:"pool_size"`
	// CacheSize is the capacity handed to the cache policy (entries or
	// size units, depending on the policy).
	CacheSize int `yaml:"cache_size"`
	// CacheOwnership is Shared or PerPredicate
	CacheOwnership CacheOwnership `yaml:"cache_ownership"`
	// CacheType selects the eviction policy
	CacheType CacheType `yaml:"cache_type"`
}
