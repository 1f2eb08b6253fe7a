// Package task is the asynchronous execution engine behind the HTTP server.
// Callers hand it opaque units of work, receive a task id immediately, and
// poll the task for status, result and captured logs while a fixed pool of
// workers executes the work without blocking request handling.
package task
