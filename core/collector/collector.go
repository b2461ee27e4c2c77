// Package collector implements the ChainCollector (spec.md §4.3): starting
// from a leaf entity id, it recursively walks authority_hints and fetch
// endpoints to assemble every candidate chain ending at a configured trust
// anchor.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/openfedgo/trustchain/core/cache"
	"github.com/openfedgo/trustchain/core/fetcher"
	"github.com/openfedgo/trustchain/core/keystore"
	"github.com/openfedgo/trustchain/core/logger"
	"github.com/openfedgo/trustchain/core/statement"
)

// DefaultMaxDepth is the default bound on recursion depth (spec.md §4.3.4).
const DefaultMaxDepth = 10

// ErrNoTrustPath is returned when zero candidate chains complete (spec.md §4.3).
// Cause holds the aggregated branch failures, when any were recorded.
type ErrNoTrustPath struct {
	EntityID string
	Cause    error
}

func (e *ErrNoTrustPath) Error() string {
	return fmt.Sprintf("collector: no trust path found for %q", e.EntityID)
}
func (e *ErrNoTrustPath) Unwrap() error { return e.Cause }

// cacheEntry is what the (iss, sub) TTL cache stores: the raw compact JWS
// plus the parsed expiry used to compute the cache's own TTL.
type cacheEntry struct {
	compact string
	exp     time.Time
}

// fetchKey identifies a single (iss, sub) fetch for caching/dedup purposes.
type fetchKey struct {
	Iss string
	Sub string
}

func (k fetchKey) String() string { return k.Iss + "|" + k.Sub }

// Collector walks authority hints to assemble candidate chains.
type Collector struct {
	fetch       *fetcher.StatementFetcher
	get         fetcher.GetFunc
	keyStore    *keystore.Store
	cache       *cache.TTLCache[fetchKey, cacheEntry]
	maxDepth    int
	allowedSkew time.Duration
	log         *slog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.log = l
		}
	}
}

// New builds a Collector. allowedSkew is folded into cached-entry TTLs
// (spec.md §4.3.3: TTL = min(exp) - now + allowed_delta).
func New(fetch *fetcher.StatementFetcher, get fetcher.GetFunc, keyStore *keystore.Store, allowedSkew time.Duration, opts ...Option) *Collector {
	c := &Collector{
		fetch:       fetch,
		get:         get,
		keyStore:    keyStore,
		cache:       cache.NewTTLCache[fetchKey, cacheEntry](1024, fetchKey.String),
		maxDepth:    DefaultMaxDepth,
		allowedSkew: allowedSkew,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect produces every distinct candidate chain for entityID ending at a
// configured trust anchor, each ordered anchor->leaf.
func (c *Collector) Collect(ctx context.Context, entityID string) ([][]string, error) {
	leafCompact, err := c.fetchConfiguration(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("collector: fetch entity configuration for %q: %w", entityID, err)
	}

	leaf, err := statement.UnverifiedPayload(leafCompact)
	if err != nil {
		return nil, fmt.Errorf("collector: parse entity configuration for %q: %w", entityID, err)
	}

	if c.keyStore.IsAnchor(entityID) {
		return [][]string{{leafCompact}}, nil
	}

	visited := map[string]bool{entityID: true}
	chains, walkErr := c.walk(ctx, leaf, leafCompact, visited, 1)
	if len(chains) == 0 {
		if walkErr != nil {
			c.log.Warn("no trust path found", logger.Subject(entityID), slog.Any("branch_errors", walkErr))
		}
		return nil, &ErrNoTrustPath{EntityID: entityID, Cause: walkErr}
	}
	return chains, nil
}

// walk recurses over current's authority_hints, returning every completed
// chain suffix [A_about_current, ..., currentCompact] discovered below it.
// Per-path visited sets (not a shared one) so two branches may legitimately
// revisit a shared grandparent; a repeat within a single path terminates
// only that path (spec.md §4.3.4).
func (c *Collector) walk(ctx context.Context, current *statement.EntityStatement, currentCompact string, visited map[string]bool, depth int) ([][]string, error) {
	if depth > c.maxDepth {
		return nil, fmt.Errorf("collector: max depth %d exceeded at %q", c.maxDepth, current.Subject)
	}

	var branchErrs *multierror.Error
	var chains [][]string

	for _, hint := range current.AuthorityHints {
		authorityID := hint.String()
		if visited[authorityID] {
			branchErrs = multierror.Append(branchErrs, fmt.Errorf("authority %q already visited on this path", authorityID))
			continue
		}

		authorityConfigCompact, err := c.fetchConfiguration(ctx, authorityID)
		if err != nil {
			branchErrs = multierror.Append(branchErrs, fmt.Errorf("fetch configuration for authority %q: %w", authorityID, err))
			continue
		}
		authorityConfig, err := statement.UnverifiedPayload(authorityConfigCompact)
		if err != nil {
			branchErrs = multierror.Append(branchErrs, fmt.Errorf("parse configuration for authority %q: %w", authorityID, err))
			continue
		}
		fem, err := authorityConfig.FederationEntityMetadata()
		if err != nil || fem.FetchEndpoint == "" {
			branchErrs = multierror.Append(branchErrs, fmt.Errorf("authority %q has no federation_fetch_endpoint", authorityID))
			continue
		}

		if ok, err := c.listedAsSubordinate(ctx, fem, authorityID, current.Subject.String()); err == nil && !ok {
			branchErrs = multierror.Append(branchErrs, fmt.Errorf("authority %q disclaims %q per list endpoint", authorityID, current.Subject))
			continue
		}

		statementAboutCurrent, err := c.fetchStatement(ctx, fem.FetchEndpoint, authorityID, current.Subject.String())
		if err != nil {
			branchErrs = multierror.Append(branchErrs, fmt.Errorf("fetch statement %q about %q: %w", authorityID, current.Subject, err))
			continue
		}

		if c.keyStore.IsAnchor(authorityID) {
			chains = append(chains, []string{statementAboutCurrent, currentCompact})
			continue
		}

		branchVisited := make(map[string]bool, len(visited)+1)
		for k := range visited {
			branchVisited[k] = true
		}
		branchVisited[authorityID] = true

		prefixes, err := c.walk(ctx, authorityConfig, statementAboutCurrent, branchVisited, depth+1)
		if err != nil {
			branchErrs = multierror.Append(branchErrs, err)
		}
		for _, prefix := range prefixes {
			chain := append(append([]string{}, prefix...), currentCompact)
			chains = append(chains, chain)
		}
	}

	if branchErrs != nil {
		return chains, branchErrs.ErrorOrNil()
	}
	return chains, nil
}

// listedAsSubordinate consults the authority's optional list endpoint
// (spec.md §12, the List endpoint supplement) to short-circuit a branch the
// authority has already disclaimed. Absence of the capability never fails
// collection: any error is treated as "unknown, proceed."
func (c *Collector) listedAsSubordinate(ctx context.Context, fem *statement.FederationEntityMetadata, authorityID, subjectID string) (bool, error) {
	if fem.ListEndpoint == "" {
		return true, nil
	}
	subs, err := fetcher.ListSubordinates(ctx, c.get, fem.ListEndpoint, 10*time.Second)
	if err != nil {
		return true, err
	}
	for _, s := range subs {
		if s == subjectID {
			return true, nil
		}
	}
	return false, nil
}

func (c *Collector) fetchConfiguration(ctx context.Context, entityID string) (string, error) {
	key := fetchKey{Iss: entityID, Sub: entityID}
	return c.cachedFetch(ctx, key, func(ctx context.Context) (string, time.Time, error) {
		compact, err := c.fetch.FetchConfiguration(ctx, entityID)
		if err != nil {
			return "", time.Time{}, err
		}
		s, err := statement.UnverifiedPayload(compact)
		if err != nil {
			return "", time.Time{}, err
		}
		return compact, s.ExpiresAt(), nil
	})
}

func (c *Collector) fetchStatement(ctx context.Context, fetchEndpoint, iss, sub string) (string, error) {
	key := fetchKey{Iss: iss, Sub: sub}
	return c.cachedFetch(ctx, key, func(ctx context.Context) (string, time.Time, error) {
		compact, err := c.fetch.Fetch(ctx, fetchEndpoint, iss, sub)
		if err != nil {
			return "", time.Time{}, err
		}
		s, err := statement.UnverifiedPayload(compact)
		if err != nil {
			return "", time.Time{}, err
		}
		return compact, s.ExpiresAt(), nil
	})
}

func (c *Collector) cachedFetch(ctx context.Context, key fetchKey, fn func(context.Context) (string, time.Time, error)) (string, error) {
	entry, err := c.cache.Load(ctx, key, func(ctx context.Context) (cacheEntry, time.Time, error) {
		compact, exp, err := fn(ctx)
		if err != nil {
			return cacheEntry{}, time.Time{}, err
		}
		return cacheEntry{compact: compact, exp: exp}, exp.Add(c.allowedSkew), nil
	})
	if err != nil {
		return "", err
	}
	return entry.compact, nil
}
