package trustchain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/openfedgo/trustchain/core/cache"
	"github.com/openfedgo/trustchain/core/collector"
	"github.com/openfedgo/trustchain/core/federation"
	"github.com/openfedgo/trustchain/core/fetcher"
	"github.com/openfedgo/trustchain/core/keystore"
	"github.com/openfedgo/trustchain/core/policy"
	"github.com/openfedgo/trustchain/core/statement"
	"github.com/openfedgo/trustchain/core/trustmark"
	"github.com/openfedgo/trustchain/core/verifier"
	"github.com/openfedgo/trustchain/pkg/ratelimiter"
)

// ResolvedChain is the result of a successful resolve() call (spec.md §4.6):
// the verified chain's anchor, leaf->anchor issuer path, minimum expiry, and
// the effective metadata computed for the requested entity type.
type ResolvedChain struct {
	Anchor            string
	IssPath           []string
	Exp               time.Time
	EffectiveMetadata statement.Metadata
	Chain             []*statement.EntityStatement
}

type resolveKey struct {
	EntityID   string
	EntityType statement.EntityType
}

func (k resolveKey) String() string { return k.EntityID + "|" + string(k.EntityType) }

// Resolver composes the Collector, Verifier, and PolicyEngine into the
// TrustChainResolver described in spec.md §4.6.
type Resolver struct {
	cfg         EngineConfig
	keyStore    *keystore.Store
	collector   *collector.Collector
	verifier    *verifier.Verifier
	policy      *policy.Engine
	cache       *cache.TTLCache[resolveKey, *ResolvedChain]
	log         *slog.Logger
	rateLimiter ratelimiter.RateLimiter
	container   *federation.Container
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRateLimiter attaches a per-issuer politeness limiter to the fetcher
// (spec.md §10.6).
func WithRateLimiter(rl ratelimiter.RateLimiter) Option {
	return func(r *Resolver) { r.rateLimiter = rl }
}

// New builds a Resolver. get is the HTTP GET capability every fetch goes
// through (spec.md §9's capability-injection design note).
func New(cfg EngineConfig, get fetcher.GetFunc, opts ...Option) (*Resolver, error) {
	cfg = cfg.withDefaults()
	if len(cfg.TrustAnchors) == 0 {
		return nil, fmt.Errorf("trustchain: at least one trust anchor is required")
	}

	anchors := make([]statement.TrustAnchor, 0, len(cfg.TrustAnchors))
	for id, jwks := range cfg.TrustAnchors {
		ident, err := statement.NewIdentifier(id)
		if err != nil {
			return nil, fmt.Errorf("trustchain: invalid trust anchor id %q: %w", id, err)
		}
		anchors = append(anchors, statement.TrustAnchor{ID: ident, JWKS: jwks})
	}

	ks := keystore.New(anchors)

	r := &Resolver{
		cfg:      cfg,
		keyStore: ks,
		policy:   policy.New(),
		cache:    cache.NewTTLCache[resolveKey, *ResolvedChain](1024, resolveKey.String),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	fetcherOpts := []fetcher.Option{}
	if r.rateLimiter != nil {
		fetcherOpts = append(fetcherOpts, fetcher.WithRateLimiter(r.rateLimiter))
	}
	f := fetcher.New(get, cfg.HTTPTimeout, fetcherOpts...)
	r.collector = collector.New(f, get, ks, cfg.AllowedDelta, collector.WithMaxDepth(cfg.MaxChainDepth), collector.WithLogger(r.log))
	r.verifier = verifier.New(ks, cfg.AllowedDelta, verifier.WithLogger(r.log), verifier.WithFetchConfiguration(f.FetchConfiguration))
	r.container = federation.New(ks, anchors, get)

	return r, nil
}

// TrustMarkVerifier builds a trust mark verifier over this resolver's
// shared KeyStore and HTTP capability, using r itself to resolve a mark
// issuer's chain length (core/trustmark.ChainResolver).
func (r *Resolver) TrustMarkVerifier(timeout time.Duration) *trustmark.Verifier {
	return trustmark.New(r, r.container.KeyStore(), r.container.HTTPClient(), timeout)
}

// Resolve implements resolve(entity_id, entity_type) (spec.md §4.6):
// collect candidate chains, verify each, select one by the priority rule,
// and apply metadata policy to produce effective metadata.
func (r *Resolver) Resolve(ctx context.Context, entityID string, entityType statement.EntityType) (*ResolvedChain, error) {
	key := resolveKey{EntityID: entityID, EntityType: entityType}
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	return r.cache.Load(ctx, key, func(ctx context.Context) (*ResolvedChain, time.Time, error) {
		if r.cfg.Deadline > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.cfg.Deadline)
			defer cancel()
		}

		verified, err := r.collectAndVerify(ctx, entityID)
		if err != nil {
			if r.cfg.Deadline > 0 && ctx.Err() == context.DeadlineExceeded {
				return nil, time.Time{}, &ErrDeadlineExceeded{EntityID: entityID, Deadline: r.cfg.Deadline}
			}
			return nil, time.Time{}, err
		}

		chosen := selectChain(verified, r.cfg.Priority)

		effective, err := r.policy.EffectiveMetadata(chosen.VerifiedChain, entityType)
		if err != nil {
			return nil, time.Time{}, &ErrPolicyViolation{EntityID: entityID, Cause: err}
		}

		result := &ResolvedChain{
			Anchor:            chosen.Anchor,
			IssPath:           chosen.IssPath,
			Exp:               chosen.Exp,
			EffectiveMetadata: effective,
			Chain:             chosen.VerifiedChain,
		}
		r.log.Debug("resolved trust chain", slog.String("entity_id", entityID), slog.String("anchor", result.Anchor))
		return result, result.Exp, nil
	})
}

// ResolveChainLength implements core/trustmark.ChainResolver: resolve
// entityID's trust chain (populating the KeyStore as a side effect of
// verification) and report the verified chain's length.
func (r *Resolver) ResolveChainLength(ctx context.Context, entityID string) (int, error) {
	verified, err := r.collectAndVerify(ctx, entityID)
	if err != nil {
		return 0, err
	}
	chosen := selectChain(verified, r.cfg.Priority)
	return len(chosen.VerifiedChain), nil
}

// KeyStore exposes the shared KeyStore, e.g. for a TrustMarkVerifier that
// needs to look up a mark issuer's key after this resolver populates it.
func (r *Resolver) KeyStore() *keystore.Store { return r.keyStore }

func (r *Resolver) collectAndVerify(ctx context.Context, entityID string) ([]*verifier.VerifiedChain, error) {
	candidates, err := r.collector.Collect(ctx, entityID)
	if err != nil {
		return nil, &ErrNoTrustPath{EntityID: entityID, Cause: err}
	}

	var verified []*verifier.VerifiedChain
	var rejections *multierror.Error
	for _, candidate := range candidates {
		vc, err := r.verifier.Verify(ctx, candidate)
		if err != nil {
			rejections = multierror.Append(rejections, err)
			continue
		}
		verified = append(verified, vc)
	}

	if len(verified) == 0 {
		return nil, &ErrNoTrustPath{EntityID: entityID, Cause: rejections.ErrorOrNil()}
	}
	return verified, nil
}

// selectChain implements spec.md §4.6's priority rule.
func selectChain(chains []*verifier.VerifiedChain, priority []string) *verifier.VerifiedChain {
	if len(chains) == 1 {
		return chains[0]
	}

	if len(priority) > 0 {
		index := make(map[string]int, len(priority))
		for i, id := range priority {
			index[id] = i
		}
		best := -1
		var bestChain *verifier.VerifiedChain
		for _, c := range chains {
			if idx, ok := index[c.Anchor]; ok && (best == -1 || idx < best) {
				best = idx
				bestChain = c
			}
		}
		if bestChain != nil {
			return bestChain
		}
	}

	sorted := append([]*verifier.VerifiedChain{}, chains...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Anchor < sorted[j].Anchor })
	return sorted[0]
}
