// Package solution implements the solution domain served by the HTTP API:
// coordinates, TOML catalogs, the local collection of catalogs and
// installed solutions, full-text search, and the command executor.
//
// Long-running operations (install, run, test, uninstall, clone, deploy,
// upgrade) are returned as task.WorkFunc closures so the caller can submit
// them to a task.TaskManager. They log through logger.FromContext so their
// output lands in the executing task's log capture.
package solution
