// Package service contains application services.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/railguard-io/railguard/internal/domain/policy"
)

// maxInheritDepth bounds the inheritance walk. A chain deeper than this
// is treated as a cycle and rejected.
const maxInheritDepth = 16

// lruEntry is a doubly-linked list node for the resolution cache.
type lruEntry struct {
	key        uint64
	resolution policy.Resolution
	prev       *lruEntry
	next       *lruEntry
}

// resolutionCache is a bounded LRU cache for resolved guardrail sets.
// Resolution runs once per gateway request against stores that change
// only on administrative writes, so cached entries stay valid until the
// next write invalidates them. Thread-safe with Mutex (both Get and Put
// mutate LRU order).
type resolutionCache struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry
	head    *lruEntry // most recently used
	tail    *lruEntry // least recently used
	maxSize int
}

func newResolutionCache(maxSize int) *resolutionCache {
	return &resolutionCache{
		entries: make(map[uint64]*lruEntry, maxSize),
		maxSize: maxSize,
	}
}

func (c *resolutionCache) Get(key uint64) (policy.Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.resolution, true
	}
	return policy.Resolution{}, false
}

func (c *resolutionCache) Put(key uint64, r policy.Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.resolution = r
		c.moveToHeadLocked(e)
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}
	e := &lruEntry{key: key, resolution: r}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

// Clear empties the cache. Called on every administrative write.
func (c *resolutionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*lruEntry, c.maxSize)
	c.head = nil
	c.tail = nil
}

func (c *resolutionCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *resolutionCache) moveToHeadLocked(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

func (c *resolutionCache) pushHeadLocked(e *lruEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *resolutionCache) unlinkLocked(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *resolutionCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// cacheKey hashes a request context deterministically.
func cacheKey(rc policy.RequestContext) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(rc.TeamID)
	_, _ = h.Write([]byte{0}) // separator
	_, _ = h.WriteString(rc.KeyID)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(rc.Model)
	return h.Sum64()
}

// ResolverService computes the ordered, de-duplicated guardrail set that
// applies to a request context: attachment matching, specificity
// ranking, inheritance walk, and root-to-leaf merge.
type ResolverService struct {
	policies    policy.Store
	attachments policy.AttachmentStore
	cache       *resolutionCache
	logger      *slog.Logger
}

// ResolverOption configures a ResolverService.
type ResolverOption func(*ResolverService)

// WithResolverCacheSize sets the maximum number of cached resolutions.
func WithResolverCacheSize(size int) ResolverOption {
	return func(s *ResolverService) {
		s.cache = newResolutionCache(size)
	}
}

// NewResolverService creates a ResolverService over the two stores.
func NewResolverService(policies policy.Store, attachments policy.AttachmentStore, logger *slog.Logger, opts ...ResolverOption) *ResolverService {
	s := &ResolverService{
		policies:    policies,
		attachments: attachments,
		cache:       newResolutionCache(1024),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate clears the resolution cache. Admin services and the seed
// watcher call this after every policy or attachment write so staleness
// stays bounded by the write itself.
func (s *ResolverService) Invalidate() {
	s.cache.Clear()
}

// CacheSize returns the current number of cached resolutions.
func (s *ResolverService) CacheSize() int {
	return s.cache.Size()
}

// Resolve returns the effective guardrail set for the request context.
// No matching attachment yields an empty resolution, not an error. An
// inheritance cycle yields a *policy.CycleError.
func (s *ResolverService) Resolve(ctx context.Context, rc policy.RequestContext) (policy.Resolution, error) {
	key := cacheKey(rc)
	if res, ok := s.cache.Get(key); ok {
		return res, nil
	}

	attachments, err := s.attachments.List(ctx)
	if err != nil {
		return policy.Resolution{}, fmt.Errorf("list attachments: %w", err)
	}

	selected := selectAttachment(attachments, rc)
	if selected == nil {
		res := policy.Resolution{}
		s.cache.Put(key, res)
		return res, nil
	}

	res, err := s.resolveChain(ctx, selected.PolicyName)
	if err != nil {
		return policy.Resolution{}, err
	}
	res.AttachmentID = selected.ID

	s.cache.Put(key, res)
	s.logger.Debug("resolved guardrails",
		"team", rc.TeamID,
		"key", rc.KeyID,
		"model", rc.Model,
		"attachment", selected.ID,
		"policy", selected.PolicyName,
		"guardrails", len(res.Guardrails),
	)
	return res, nil
}

// ResolveForPolicy computes the effective guardrail set for a policy by
// name, independent of any attachment. Powers the admin
// resolved-guardrails endpoint.
func (s *ResolverService) ResolveForPolicy(ctx context.Context, name string) (policy.Resolution, error) {
	return s.resolveChain(ctx, name)
}

// selectAttachment picks the single highest-specificity match. Ties are
// broken by most-recently-created, then lexically greatest ID, so
// resolution is deterministic.
func selectAttachment(attachments []policy.Attachment, rc policy.RequestContext) *policy.Attachment {
	var best *policy.Attachment
	bestSpec := policy.SpecificityNone
	for i := range attachments {
		a := &attachments[i]
		spec := a.SpecificityFor(rc)
		if spec == policy.SpecificityNone {
			continue
		}
		switch {
		case spec > bestSpec:
			best, bestSpec = a, spec
		case spec == bestSpec && best != nil:
			if a.CreatedAt.After(best.CreatedAt) ||
				(a.CreatedAt.Equal(best.CreatedAt) && a.ID > best.ID) {
				best = a
			}
		}
	}
	return best
}

// resolveChain walks the inheritance links from the named policy to its
// root, then merges adds/removes root-to-leaf so the leaf's adjustments
// take final precedence.
func (s *ResolverService) resolveChain(ctx context.Context, name string) (policy.Resolution, error) {
	// Walk up, leaf first. Visited set plus a depth bound guards against
	// cycles that slipped past write-time validation.
	var chain []policy.Policy
	visited := make(map[string]bool)
	walked := []string{}

	current := name
	for current != "" {
		if visited[current] || len(walked) >= maxInheritDepth {
			return policy.Resolution{}, &policy.CycleError{Chain: append(walked, current)}
		}
		visited[current] = true
		walked = append(walked, current)

		p, err := s.policies.GetByName(ctx, current)
		if err != nil {
			return policy.Resolution{}, fmt.Errorf("policy %q: %w", current, err)
		}
		chain = append(chain, *p)
		current = p.Inherit
	}

	// Reverse to root-to-leaf order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	res := policy.Resolution{
		Guardrails: mergeChain(chain),
		Chain:      make([]string, len(chain)),
	}
	for i, p := range chain {
		res.Chain[i] = p.Name
	}
	return res, nil
}

// mergeChain accumulates guardrail names over the root-to-leaf chain:
// each policy's adds are appended if not already present (first-seen
// order preserved), then that same policy's removes are applied.
func mergeChain(chain []policy.Policy) []string {
	var ordered []string
	present := make(map[string]bool)

	for _, p := range chain {
		for _, name := range p.GuardrailsAdd {
			if !present[name] {
				present[name] = true
				ordered = append(ordered, name)
			}
		}
		for _, name := range p.GuardrailsRemove {
			if present[name] {
				present[name] = false
				ordered = remove(ordered, name)
			}
		}
	}
	if ordered == nil {
		ordered = []string{}
	}
	return ordered
}

func remove(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
