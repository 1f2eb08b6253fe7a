// Package events provides types and interfaces for task lifecycle notifications.
//
// The task engine emits a TaskEvent on every status change without knowing
// who listens. Handlers registered with an emitter receive them in
// registration order; the HTTP layer registers one that streams events to
// websocket clients.
//
// The primary components are:
// - TaskEvent: a status change of one task
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
package events
