package cache

import (
	"context"
	"hash/fnv"
	"sync"
)

const indexShards = 16

// Index maintains the three invalidation mappings: tag to keys, a key trie
// for prefix scans, and dependency root to direct dependents.
//
// Contract:
//   - Concurrency: safe for concurrent registration and invalidation. All
//     three mappings are sharded so unrelated keys never contend; no
//     operation takes an index-wide lock.
//   - Cost: registration is constant per mapping (amortized over the key
//     length); a prefix scan walks only the trie branch under the prefix.
//   - Staleness: index entries may outlive their store entries. That is
//     harmless because reads always consult the store, never the index; the
//     index only drives bulk removal. Invalidating an already-absent key is
//     a no-op.
//   - Scope: dependency invalidation removes direct dependents only. It never
//     walks dependents-of-dependents.
type Index struct {
	store   Store
	monitor *Monitor

	tags   *shardedKeySets
	deps   *shardedKeySets
	meta   *shardedMeta
	prefix *prefixIndex
}

// NewIndex creates an invalidation index over the given store.
func NewIndex(store Store, monitor *Monitor) *Index {
	return &Index{
		store:   store,
		monitor: monitor,
		tags:    newShardedKeySets(),
		deps:    newShardedKeySets(),
		meta:    newShardedMeta(),
		prefix:  newPrefixIndex(),
	}
}

// Register records a key under its tags and optional dependency root and
// makes it visible to prefix scans. Registering twice replaces the previous
// tag and dependency membership.
func (ix *Index) Register(key string, tags []string, dependencyRoot string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if old, ok := ix.meta.swap(key, keyMeta{tags: tags, root: dependencyRoot}); ok {
		ix.removeMemberships(key, old)
	}

	for _, tag := range tags {
		ix.tags.add(tag, key)
	}
	if dependencyRoot != "" {
		ix.deps.add(dependencyRoot, key)
	}
	ix.prefix.insert(key)
	return nil
}

// Forget removes the key from every index without touching the store.
func (ix *Index) Forget(key string) {
	meta, ok := ix.meta.delete(key)
	if ok {
		ix.removeMemberships(key, meta)
	}
	ix.prefix.remove(key)
}

// InvalidateByTag removes every key registered under tag from the store
// and from all indices. Returns the number of keys removed.
func (ix *Index) InvalidateByTag(ctx context.Context, tag string) (int, error) {
	keys := ix.tags.members(tag)
	return ix.invalidate(ctx, keys)
}

// InvalidateByPrefix removes every registered key starting with prefix.
// The scan descends directly to the trie branch under prefix, so its cost
// is bounded by the matching keys, not the index size.
func (ix *Index) InvalidateByPrefix(ctx context.Context, prefix string) (int, error) {
	keys := ix.prefix.scan(prefix)
	return ix.invalidate(ctx, keys)
}

// InvalidateDependents removes the direct dependents of rootKey.
// The root's own entry, if cached, is untouched.
func (ix *Index) InvalidateDependents(ctx context.Context, rootKey string) (int, error) {
	keys := ix.deps.members(rootKey)
	return ix.invalidate(ctx, keys)
}

// invalidate removes the resolved key set from the store, then purges the
// keys from all indices so they cannot accumulate. Removal is idempotent:
// keys already gone from the store or the indices are skipped silently.
func (ix *Index) invalidate(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	if err := ix.store.DeleteMany(ctx, keys); err != nil {
		return 0, err
	}
	for _, key := range keys {
		ix.Forget(key)
	}

	ix.monitor.RecordInvalidations(len(keys))
	return len(keys), nil
}

func (ix *Index) removeMemberships(key string, meta keyMeta) {
	for _, tag := range meta.tags {
		ix.tags.remove(tag, key)
	}
	if meta.root != "" {
		ix.deps.remove(meta.root, key)
	}
}

// keyMeta is the reverse mapping from a key to its registered memberships.
type keyMeta struct {
	tags []string
	root string
}

// shardedMeta is a sharded key -> keyMeta map.
type shardedMeta struct {
	shards [indexShards]struct {
		mu sync.Mutex
		m  map[string]keyMeta
	}
}

func newShardedMeta() *shardedMeta {
	sm := &shardedMeta{}
	for i := range sm.shards {
		sm.shards[i].m = make(map[string]keyMeta)
	}
	return sm
}

// swap stores meta for key and returns the previous value, if any.
func (sm *shardedMeta) swap(key string, meta keyMeta) (keyMeta, bool) {
	shard := &sm.shards[shardFor(key)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	old, ok := shard.m[key]
	shard.m[key] = meta
	return old, ok
}

func (sm *shardedMeta) delete(key string) (keyMeta, bool) {
	shard := &sm.shards[shardFor(key)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	meta, ok := shard.m[key]
	if ok {
		delete(shard.m, key)
	}
	return meta, ok
}

// shardedKeySets is a sharded name -> set-of-keys map used for both the
// tag index and the dependency index.
type shardedKeySets struct {
	shards [indexShards]struct {
		mu   sync.RWMutex
		sets map[string]map[string]struct{}
	}
}

func newShardedKeySets() *shardedKeySets {
	sk := &shardedKeySets{}
	for i := range sk.shards {
		sk.shards[i].sets = make(map[string]map[string]struct{})
	}
	return sk
}

func (sk *shardedKeySets) add(name, key string) {
	shard := &sk.shards[shardFor(name)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	set, ok := shard.sets[name]
	if !ok {
		set = make(map[string]struct{})
		shard.sets[name] = set
	}
	set[key] = struct{}{}
}

func (sk *shardedKeySets) remove(name, key string) {
	shard := &sk.shards[shardFor(name)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	set, ok := shard.sets[name]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(shard.sets, name)
	}
}

// members returns a snapshot of the keys registered under name.
func (sk *shardedKeySets) members(name string) []string {
	shard := &sk.shards[shardFor(name)]
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	set := shard.sets[name]
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	return keys
}

func shardFor(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32() % indexShards
}

// prefixIndex holds every registered key in byte-wise tries sharded by the
// key's first byte. Inserting a key costs its length and touches only its
// own branch; registrations for key families with distinct leading bytes
// never contend.
type prefixIndex struct {
	shards [256]prefixShard
}

type prefixShard struct {
	mu   sync.RWMutex
	root *trieNode
}

type trieNode struct {
	children map[byte]*trieNode
	terminal bool
}

func newPrefixIndex() *prefixIndex {
	return &prefixIndex{}
}

// insert records key. Keys are validated non-empty before they reach here.
func (p *prefixIndex) insert(key string) {
	shard := &p.shards[key[0]]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if shard.root == nil {
		shard.root = &trieNode{}
	}
	node := shard.root
	for i := 1; i < len(key); i++ {
		b := key[i]
		child := node.children[b]
		if child == nil {
			child = &trieNode{}
			if node.children == nil {
				node.children = make(map[byte]*trieNode)
			}
			node.children[b] = child
		}
		node = child
	}
	node.terminal = true
}

// remove forgets key and prunes the branch so forgotten keys do not pin
// memory. Removing an absent key is a no-op.
func (p *prefixIndex) remove(key string) {
	if key == "" {
		return
	}
	shard := &p.shards[key[0]]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if shard.root == nil {
		return
	}
	path := make([]*trieNode, 1, len(key))
	path[0] = shard.root
	node := shard.root
	for i := 1; i < len(key); i++ {
		node = node.children[key[i]]
		if node == nil {
			return
		}
		path = append(path, node)
	}
	if !node.terminal {
		return
	}
	node.terminal = false

	for i := len(path) - 1; i > 0; i-- {
		n := path[i]
		if n.terminal || len(n.children) > 0 {
			break
		}
		delete(path[i-1].children, key[i])
	}
}

// scan returns every registered key starting with prefix. An empty prefix
// returns all registered keys.
func (p *prefixIndex) scan(prefix string) []string {
	if prefix == "" {
		var keys []string
		for b := 0; b < len(p.shards); b++ {
			keys = append(keys, p.scanShard(byte(b), "")...)
		}
		return keys
	}
	return p.scanShard(prefix[0], prefix[1:])
}

// scanShard collects the keys in the first-byte shard fb whose remainder
// starts with rest.
func (p *prefixIndex) scanShard(fb byte, rest string) []string {
	shard := &p.shards[fb]
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	node := shard.root
	if node == nil {
		return nil
	}
	for i := 0; i < len(rest); i++ {
		node = node.children[rest[i]]
		if node == nil {
			return nil
		}
	}

	var keys []string
	buf := make([]byte, 0, 1+len(rest)+32)
	buf = append(buf, fb)
	buf = append(buf, rest...)
	collectKeys(node, buf, &keys)
	return keys
}

// collectKeys walks the subtree under node appending every terminal key.
// string(buf) copies, so reusing buf's backing array across siblings is safe.
func collectKeys(node *trieNode, buf []byte, keys *[]string) {
	if node.terminal {
		*keys = append(*keys, string(buf))
	}
	for b, child := range node.children {
		collectKeys(child, append(buf, b), keys)
	}
}
