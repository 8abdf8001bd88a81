// Package engine routes CloudEvents through the three-step chain.
//
// Architecture:
//
// resolver.go         - Transition table from inbound source to step, next source and policy
// router.go           - Runs the step and builds the dispatch plan (Router)
// gather.go           - Scatter-gather counter for the convergent step
// dispatcher.go       - Detached and awaited delivery of plan events (Dispatcher)
// http_handler.go     - HTTP service entry point (RouterHandler)
// job.go              - One-shot job entry point (JobRunner)
// handlers_builtin.go - Simulated step work and the per-step handler registry
//
// Routing is identical in both entry points; they differ only in whether
// deliveries are awaited.
package engine
