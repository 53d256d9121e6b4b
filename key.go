package art

import "encoding/binary"

// stackKeyLen is the size of the inline key buffer. Keys at or under this
// length never touch the heap; longer keys own a heap buffer.
const stackKeyLen = 128

// Key is a variable-length byte string compared as an unsigned byte
// sequence. Integer keys are byte-swapped into big-endian on construction
// so lexicographic order over the bytes equals numeric order.
//
// Key has no copy constructor in the source this is ported from; Go gives
// us no way to forbid struct copies, so Take documents the one place
// ownership transfer matters (handing a heap-backed key to a leaf).
type Key struct {
	stack [stackKeyLen]byte
	heap  []byte
	n     int
}

// NewKeyFromBytes copies b into the key, using the inline buffer when it
// fits and a heap buffer otherwise.
func NewKeyFromBytes(b []byte) Key {
	var k Key
	k.n = len(b)
	if len(b) <= stackKeyLen {
		copy(k.stack[:], b)
	} else {
		k.heap = append([]byte(nil), b...)
	}
	return k
}

// NewKeyFromUint64 byte-swaps v into big-endian so unsigned lexicographic
// comparison of the resulting 8 bytes equals numeric comparison of v.
func NewKeyFromUint64(v uint64) Key {
	var k Key
	k.n = 8
	binary.BigEndian.PutUint64(k.stack[:8], v)
	return k
}

// Bytes returns the key's byte representation. The returned slice aliases
// the key's storage and must not be retained past the key's lifetime if
// the key is later mutated via Take.
func (k *Key) Bytes() []byte {
	if k.heap != nil {
		return k.heap
	}
	return k.stack[:k.n]
}

// Len returns the key length in bytes.
func (k *Key) Len() int { return k.n }

// At returns the byte at index i, matching ARTKey::operator[] in the
// source this is ported from.
func (k *Key) At(i int) byte {
	if k.heap != nil {
		return k.heap[i]
	}
	return k.stack[i]
}

// Take empties k and returns its former byte contents as an owned slice,
// modeling the move-constructor semantics of the source's ARTKey(ARTKey&&).
// Callers must not read k after calling Take.
func (k *Key) Take() []byte {
	out := append([]byte(nil), k.Bytes()...)
	k.heap = nil
	k.n = 0
	return out
}

// Compare returns -1, 0, or 1 comparing a and b as unsigned byte sequences,
// with a shorter prefix-equal key sorting before its longer extension.
func Compare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
