// Package storage provides the scatter-gather counter stores used by the
// router: a process-local atomic counter and a Redis-backed counter shared by
// every replica and job pod of the chain.
package storage
