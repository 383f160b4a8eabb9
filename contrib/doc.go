// Package contrib holds optional components built on top of tonesync.
//
// Nothing here is needed to run a Session. The relay package serves any
// store.Store over WebSocket so that clients can use wsstore as their
// backend.
//
// Code under contrib may change without notice between releases.
package contrib
