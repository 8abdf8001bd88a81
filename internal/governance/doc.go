// Package governance protects downstream destinations from the router's
// outbound posts: a circuit breaker per destination address and a bounded
// timeout per post. Neither retries; a rejected post is simply lost, which
// keeps delivery at-most-once.
package governance
