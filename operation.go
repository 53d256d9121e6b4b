package art

import (
	"github.com/pkg/errors"

	"github.com/sirgallo/art/epoch"
)

// ErrKeyExists is not returned by any Tree operation: Insert adds a TID
// to an existing key's set, and inserting a TID the key already holds
// leaves that set unchanged and returns nil.
var ErrKeyExists = errors.New("art: key already exists")

// ErrNotFound is returned by Remove when the key is absent.
var ErrNotFound = errors.New("art: key not found")

const maxRestartAttempts = 64

// Lookup returns the TID stored for key, or false if key is absent. When
// key maps to more than one TID (a non-unique index), Lookup returns the
// first (oldest-inserted) one; use LookupAll for the complete set.
// Grounded on the teacher's Operation.go Get, generalized to the
// optimistic lock-coupling descent of
// original_source/src/include/index/art.h's Lookup.
func (t *Tree) Lookup(key []byte) (TID, bool, error) {
	for attempt := 0; ; attempt++ {
		tid, found, err := t.lookupOnce(key)
		if err == nil {
			return tid, found, nil
		}
		if !errors.Is(err, errRestart) {
			return 0, false, err
		}
		if attempt >= maxRestartAttempts {
			return 0, false, errors.Wrap(err, "art: lookup exceeded restart budget")
		}
		spinBackoff(attempt)
	}
}

// LookupAll returns every TID stored for key.
func (t *Tree) LookupAll(key []byte) ([]TID, error) {
	for attempt := 0; ; attempt++ {
		tids, err := t.lookupAllOnce(key)
		if err == nil {
			return tids, nil
		}
		if !errors.Is(err, errRestart) {
			return nil, err
		}
		if attempt >= maxRestartAttempts {
			return nil, errors.Wrap(err, "art: lookup exceeded restart budget")
		}
		spinBackoff(attempt)
	}
}

func (t *Tree) lookupOnce(key []byte) (TID, bool, error) {
	c, found, err := t.findLeaf(key)
	if err != nil || !found {
		return 0, false, err
	}
	if tid, ok := singleTID(c); ok {
		return tid, true, nil
	}
	tids := c.ext.snapshot()
	if len(tids) == 0 {
		return 0, false, nil
	}
	return tids[0], true, nil
}

func (t *Tree) lookupAllOnce(key []byte) ([]TID, error) {
	c, found, err := t.findLeaf(key)
	if err != nil || !found {
		return nil, err
	}
	if tid, ok := singleTID(c); ok {
		return []TID{tid}, nil
	}
	return c.ext.snapshot(), nil
}

// findLeaf descends from the root to the leaf child matching key,
// reading under the optimistic protocol from lock.go. It returns
// errRestart if any version check fails along the way.
func (t *Tree) findLeaf(key []byte) (child, bool, error) {
	ti, cid := t.acquireThread(epoch.TimestampRead)
	defer t.releaseThread(ti, cid)

	holder := t.loadRoot()
	if holder.root == nil {
		return child{}, false, nil
	}

	node := holder.root
	depth := 0
	for {
		h := node.base()
		version, err := h.lock.readLockOrRestart()
		if err != nil {
			return child{}, false, err
		}

		newDepth, ok := checkPrefixOptimistic(node, key, depth)
		if err := h.lock.readUnlockOrRestart(version); err != nil {
			return child{}, false, err
		}
		if !ok {
			return child{}, false, nil
		}
		depth = newDepth

		if depth >= len(key) {
			return child{}, false, nil
		}

		c, found := node.getChild(key[depth])
		if err := h.lock.checkOrRestart(version); err != nil {
			return child{}, false, err
		}
		if !found {
			return child{}, false, nil
		}

		if c.isLeaf() {
			if !t.verifyLeafKey(c, key) {
				return child{}, false, nil
			}
			return c, true, nil
		}

		node = c.inner
		depth++
	}
}

// verifyLeafKey re-checks a candidate leaf's full key against the search
// key, since optimistic prefix skips can produce false-positive
// descents. When no key resolver was configured it trusts the descent,
// which is only safe for fixed-length keys with no shared prefixes
// exceeding maxPrefixLen.
func (t *Tree) verifyLeafKey(c child, key []byte) bool {
	if t.keyOf == nil {
		return true
	}
	var candidates []TID
	if tid, ok := singleTID(c); ok {
		candidates = []TID{tid}
	} else {
		candidates = c.ext.snapshot()
	}
	for _, tid := range candidates {
		if Compare(t.keyOf(tid), key) == 0 {
			return true
		}
	}
	return false
}

// Insert stores tid under key. If key already exists, tid is added to
// that key's TID set (duplicates are legal, per externalLeaf) rather
// than rejected; callers enforcing uniqueness should Lookup first.
// Grounded on the teacher's Operation.go Put plus
// original_source/src/include/index/art.h's Insert, including the
// split-on-diverging-prefix and grow-on-full cases.
func (t *Tree) Insert(key []byte, tid TID) error {
	for attempt := 0; ; attempt++ {
		err := t.insertOnce(key, tid)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errRestart) {
			return err
		}
		if attempt >= maxRestartAttempts {
			return errors.Wrap(err, "art: insert exceeded restart budget")
		}
		spinBackoff(attempt)
	}
}

func (t *Tree) insertOnce(key []byte, tid TID) error {
	ti, cid := t.acquireThread(epoch.TimestampCommit)
	defer t.releaseThread(ti, cid)

	holder := t.loadRoot()
	if holder.root == nil {
		return t.insertEmptyRoot(holder, key, tid)
	}
	return t.insertDescend(holder.root, nil, 0, key, 0, tid, ti)
}

// insertEmptyRoot handles the very first insert into an empty tree: the
// root becomes a node4 carrying every key byte but the last as its
// prefix, with the new key's leaf as its sole child under the last
// byte - so a later descent consuming the prefix then reading
// key[depth] at depth==len(key)-1 finds it, instead of searching for
// key[0] against a child stored under key[len(key)-1].
func (t *Tree) insertEmptyRoot(holder *rootHolder, key []byte, tid TID) error {
	if len(key) == 0 {
		return errors.New("art: empty key not supported")
	}
	n := newNode4(key[:len(key)-1])
	n.addChild(key[len(key)-1], leafChild(tid))
	newHolder := &rootHolder{root: n}
	if !t.casRoot(holder, newHolder) {
		return errRestart
	}
	return nil
}

// insertDescend walks from node (whose parent, if any, is held write-
// locked by the caller only at the point a structural change is about
// to happen) toward the insertion point for key starting at depth,
// taking write locks just-in-time per spec.md §4.2's lock-coupling rule:
// a node is only ever locked once the operation is committed to
// mutating it or its parent pointer to it.
func (t *Tree) insertDescend(node innerNode, parent innerNode, parentKey byte, key []byte, depth int, tid TID, ti *PaddedThreadInfo) error {
	h := node.base()

	matched, full := checkPrefixPessimistic(node, key, depth, t.resolveKey)
	if !full {
		return t.splitPrefix(node, parent, parentKey, key, depth, matched, tid, ti)
	}
	depth += int(h.prefixLen)

	if depth >= len(key) {
		return errors.New("art: key is a prefix of an existing key")
	}

	version, err := h.lock.readLockOrRestart()
	if err != nil {
		return err
	}

	k := key[depth]
	c, found := node.getChild(k)
	if !found {
		if node.full() {
			return t.growAndInsert(node, parent, parentKey, k, key, depth, tid, version, ti)
		}
		if err := h.lock.upgradeToWriteLockOrRestart(version); err != nil {
			return err
		}
		node.addChild(k, leafChild(tid))
		h.lock.writeUnlock()
		return nil
	}

	if err := h.lock.checkOrRestart(version); err != nil {
		return err
	}

	if c.isLeaf() {
		return t.insertIntoLeaf(node, k, c, key, depth, tid, version)
	}

	return t.insertDescend(c.inner, node, k, key, depth+1, tid, ti)
}

// insertIntoLeaf handles inserting where an existing leaf already
// occupies the target key byte: either the keys are identical (append
// tid to that key's TID set) or they diverge partway through, requiring
// a new node4 splitting the two.
func (t *Tree) insertIntoLeaf(node innerNode, k byte, c child, key []byte, depth int, tid TID, version uint64) error {
	h := node.base()

	existing, single := singleTID(c)
	if !single {
		existing = c.ext.snapshot()[0]
	}

	// Without a key resolver we have no way to see past this leaf byte,
	// so we trust the same assumption verifyLeafKey documents (no two
	// distinct keys share a byte this deep) and treat the insert as a
	// duplicate of the same key.
	sameKey := true
	var existingKey []byte
	if t.keyOf != nil {
		existingKey = t.keyOf(existing)
		sameKey = Compare(existingKey, key) == 0
	}

	if sameKey {
		if err := h.lock.checkOrRestart(version); err != nil {
			return err
		}
		if single {
			ext := t.pool.getLeaf(c.tid)
			ext.append(tid)
			if err := h.lock.upgradeToWriteLockOrRestart(version); err != nil {
				return err
			}
			node.replaceChild(k, externalChild(ext))
			h.lock.writeUnlock()
			return nil
		}
		c.ext.append(tid)
		return nil
	}

	// Diverging keys: find where existingKey and key first differ past
	// the byte they share at depth (k), and split on that run rather
	// than re-using k for both, which would silently drop one of them
	// (node4.getChild only ever returns the first match for a byte).
	if err := h.lock.upgradeToWriteLockOrRestart(version); err != nil {
		return err
	}
	defer h.lock.writeUnlock()

	start := depth + 1
	i := start
	for i < len(existingKey) && i < len(key) && existingKey[i] == key[i] {
		i++
	}
	if i >= len(existingKey) || i >= len(key) {
		return errors.New("art: key is a prefix of an existing key")
	}

	child4 := newNode4(existingKey[start:i])
	child4.addChild(existingKey[i], c)
	child4.addChild(key[i], leafChild(tid))
	node.replaceChild(k, innerChild(child4))
	return nil
}

// growAndInsert upgrades node to its next size class and inserts the
// new child there, then swaps the grown node into the parent (or root)
// in place of node, retiring the old node for epoch-deferred reclamation.
func (t *Tree) growAndInsert(node innerNode, parent innerNode, parentKey byte, k byte, key []byte, depth int, tid TID, version uint64, ti *PaddedThreadInfo) error {
	h := node.base()
	if err := h.lock.upgradeToWriteLockOrRestart(version); err != nil {
		return err
	}

	grown := node.grow()
	grown.addChild(k, leafChild(tid))

	if parent == nil {
		holder := t.loadRoot()
		newHolder := &rootHolder{root: grown}
		if !t.casRoot(holder, newHolder) {
			h.lock.writeUnlock()
			return errRestart
		}
	} else {
		if _, err := parent.base().lock.writeLockOrRestart(); err != nil {
			h.lock.writeUnlock()
			return err
		}
		parent.replaceChild(parentKey, innerChild(grown))
		parent.base().lock.writeUnlock()
	}

	h.lock.writeUnlockObsolete()
	t.retire(ti, node)
	return nil
}

// splitPrefix handles an Insert whose key diverges from node's prefix
// partway through: a new node4 is spliced in above node, holding the
// common prefix, with node (re-prefixed past the divergence point) and
// the new key's leaf as its two children.
func (t *Tree) splitPrefix(node innerNode, parent innerNode, parentKey byte, key []byte, depth, matched int, tid TID, ti *PaddedThreadInfo) error {
	h := node.base()
	if _, err := h.lock.writeLockOrRestart(); err != nil {
		return err
	}
	defer h.lock.writeUnlock()

	oldPrefix := append([]byte(nil), h.prefixBytes()...)
	if pl := int(h.prefixLen); pl > maxPrefixLen {
		// Only the first maxPrefixLen bytes are stored inline; recover the
		// whole prefix from a representative leaf's key.
		c, ok := node.anyChild()
		for ok && c.kind == childInner {
			c, ok = c.inner.anyChild()
		}
		if lk := t.resolveKey(c); depth+pl <= len(lk) {
			oldPrefix = append([]byte(nil), lk[depth:depth+pl]...)
		}
	}
	commonPrefix := oldPrefix[:matched]

	splitNode := newNode4(commonPrefix)

	if depth+matched >= len(key) {
		return errors.New("art: key is a prefix of an existing key")
	}
	newKeyByte := key[depth+matched]
	splitNode.addChild(newKeyByte, leafChild(tid))

	var divergingByte byte
	var rest []byte
	if matched < len(oldPrefix) {
		divergingByte = oldPrefix[matched]
		rest = oldPrefix[matched+1:]
	}
	splitNode.addChild(divergingByte, innerChild(node))

	// node's prefix is only rewritten once splitNode is linked in, so a
	// failed root CAS or parent lock restarts with node unchanged.
	if parent == nil {
		holder := t.loadRoot()
		if !t.casRoot(holder, &rootHolder{root: splitNode}) {
			return errRestart
		}
		h.setPrefix(rest)
		return nil
	}

	if _, err := parent.base().lock.writeLockOrRestart(); err != nil {
		return err
	}
	parent.replaceChild(parentKey, innerChild(splitNode))
	parent.base().lock.writeUnlock()
	h.setPrefix(rest)
	return nil
}

// Remove deletes tid from key's TID set. If that was the only TID for
// key, the key itself is removed from the tree, and a node left with a
// single child is collapsed into its parent, per
// original_source/src/include/index/art.h's Delete. An underfull node is
// not shrunk to a smaller variant, and an external leaf left with one TID
// stays external.
func (t *Tree) Remove(key []byte, tid TID) error {
	for attempt := 0; ; attempt++ {
		err := t.removeOnce(key, tid)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errRestart) {
			return err
		}
		if attempt >= maxRestartAttempts {
			return errors.Wrap(err, "art: remove exceeded restart budget")
		}
		spinBackoff(attempt)
	}
}

func (t *Tree) removeOnce(key []byte, tid TID) error {
	ti, cid := t.acquireThread(epoch.TimestampCommit)
	defer t.releaseThread(ti, cid)

	holder := t.loadRoot()
	if holder.root == nil {
		return ErrNotFound
	}
	return t.removeDescend(holder.root, nil, 0, key, 0, tid, ti)
}

func (t *Tree) removeDescend(node innerNode, parent innerNode, parentKey byte, key []byte, depth int, tid TID, ti *PaddedThreadInfo) error {
	h := node.base()

	matched, full := checkPrefixPessimistic(node, key, depth, t.resolveKey)
	if !full || matched > len(key)-depth {
		return ErrNotFound
	}
	depth += int(h.prefixLen)
	if depth >= len(key) {
		return ErrNotFound
	}

	version, err := h.lock.readLockOrRestart()
	if err != nil {
		return err
	}

	k := key[depth]
	c, found := node.getChild(k)
	if !found {
		if err := h.lock.checkOrRestart(version); err != nil {
			return err
		}
		return ErrNotFound
	}

	if !c.isLeaf() {
		if err := h.lock.checkOrRestart(version); err != nil {
			return err
		}
		return t.removeDescend(c.inner, node, k, key, depth+1, tid, ti)
	}

	if err := h.lock.upgradeToWriteLockOrRestart(version); err != nil {
		return err
	}

	emptied, err := t.removeFromLeaf(c, tid)
	if err != nil {
		h.lock.writeUnlock()
		return err
	}
	if !emptied {
		h.lock.writeUnlock()
		return nil
	}

	// When at most one child will remain, node collapses into its parent.
	// The parent's write lock is taken before node is changed, so a failed
	// lock restarts the remove with node still intact.
	collapse := node.count() <= 2 && parent != nil
	if collapse {
		if _, err := parent.base().lock.writeLockOrRestart(); err != nil {
			h.lock.writeUnlock()
			return err
		}
	}

	node.removeChild(k)

	if !collapse {
		h.lock.writeUnlock()
		return nil
	}

	// Collapse: prepend node's prefix and the remaining child's key byte
	// to that child's prefix and put the child in node's place in the
	// parent, per the REDESIGN FLAG making path collapse deterministic
	// rather than "collapse or restart, implementation's choice".
	var remainingKey byte
	var remaining child
	node.forEach(func(key byte, c child) { remainingKey, remaining = key, c })
	t.collapseInto(node, remainingKey, remaining)

	if remaining.kind == childEmpty {
		// node held only the removed leaf: drop it from the parent.
		parent.removeChild(parentKey)
	} else {
		parent.replaceChild(parentKey, remaining)
	}
	parent.base().lock.writeUnlock()

	h.lock.writeUnlockObsolete()
	t.retire(ti, node)
	return nil
}

// collapseInto extends child's prefix (when it is an inner node) to
// include node's own prefix plus the diverging key byte, so the merged
// path reads identically to how it would if node had never existed.
func (t *Tree) collapseInto(node innerNode, key byte, c child) {
	if c.kind != childInner {
		return
	}
	ch := c.inner.base()
	merged := append(append([]byte(nil), node.base().prefixBytes()...), key)
	merged = append(merged, ch.prefixBytes()...)
	// merged holds at least the first maxPrefixLen bytes of the new
	// prefix; its true length counts the bytes neither node stores inline.
	total := node.base().prefixLen + 1 + ch.prefixLen
	ch.setPrefix(merged)
	ch.prefixLen = total
}

func (t *Tree) removeFromLeaf(c child, tid TID) (emptied bool, err error) {
	if single, ok := singleTID(c); ok {
		if single != tid {
			return false, ErrNotFound
		}
		return true, nil
	}
	return c.ext.remove(tid), nil
}
