/*
Package observability turns engine lifecycle events into Prometheus metrics and
structured log lines.

Both are delivered as domain.LifecycleHooks, so they can be merged with Combine and
handed to the engine through marktree.WithLifecycleHooks.
*/
package observability
