// Package art implements a concurrent Adaptive Radix Tree index over
// byte-string keys mapping to TIDs (tuple identifiers into an external
// MVCC table), with epoch-based deferred reclamation for lock-free
// reads. See the art/epoch subpackage for the epoch manager itself.
package art
