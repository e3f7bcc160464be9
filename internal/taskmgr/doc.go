// Package taskmgr runs submitted searches as asynchronous tasks.
//
// A task moves pending -> running -> one of completed, failed, or cancelled.
// The pipeline executes four named steps in order: parsing, searching,
// retrieving, generating. Cancellation is cooperative: the flag is checked
// between steps, so an in-flight step always runs to completion. Terminal
// tasks are retained up to a bounded history; once evicted, a task id is
// indistinguishable from one that never existed.
package taskmgr
