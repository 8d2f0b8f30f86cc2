// Package kvservice implements the Store and Retrieve operations of kvgate.
//
// Every request passes admission control before it reaches the store:
//
//	validate key -> Admit -> work delay -> store call -> outcome mapping
//
// The permit returned by Admit is released on every exit path, including a
// panic inside the store call. Errors are returned as *StatusError with a Code
// that the rpc layer sends to the caller.
//
// Outcome mapping: KeyAlreadyExists becomes CodeAlreadyExists, KeyNotFound
// becomes CodeNotFound, BackingStoreUnavailable becomes CodeUnavailable and an
// abandoned admission becomes CodeCanceled. With Options.CoarseErrors every
// failed Store is reported as CodeAlreadyExists and every failed Retrieve as
// CodeNotFound.
package kvservice
