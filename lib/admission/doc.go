// Package admission bounds the load a kvgate server puts on its store.
//
// Two policies implement IAdmissionController:
//
//   - BoundedConcurrency: at most Max requests hold a slot at the same time.
//     Further requests wait in arrival order until a slot is released.
//
//   - TokenBucket: a bucket of Capacity tokens that refills at RefillRate
//     tokens per second. Every admission consumes one token, requests wait
//     while the bucket is empty.
//
// Admission never fails because of load, it only suspends. Admit returns an
// error only when the context of the request ends first, and in that case
// nothing is held.
package admission
