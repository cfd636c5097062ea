// Package engine runs the pet lifecycle for every tenant.
//
// Interactive operations (adopt, feed, play, buy, rename) and the decay pass
// all follow one pattern: lock, re-read the pet from the store, mutate a
// local copy, write it back, then publish events once locks are released.
// Locks are taken account first, pet second.
package engine
