// Package broadcast provides the message fan-out engine.
//
// A broadcast sends one payload to every registered recipient. Delivery is
// best-effort: each recipient gets at most two attempts depending on how the
// first failure classifies, and the job always runs to completion with a
// sent/failed split. Sends from all workers pass through one shared gate
// that enforces the transport's global rate limit and any "retry after"
// pause it signals.
//
// The engine operates on a snapshot of the recipient directory taken at
// trigger time; recipients who register mid-run are picked up by the next
// broadcast.
package broadcast
