// Package api handles incoming HTTP requests for the solution server. Task
// handlers expose the task engine (status, logs, listing, the event
// stream); solution handlers validate query parameters, submit long
// operations to the task manager and answer fast reads inline.
package api
