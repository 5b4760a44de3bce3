// Package merge implements the fragment merge engine: security-aware
// ordering, strategy-driven deep merging, and the security veto pass.
//
// The engine is pure. Given the same ordered fragment contents and the
// same strategy resolver it always produces a deeply-equal result, so it
// needs no synchronization even if callers parallelize fragment loading.
package merge
