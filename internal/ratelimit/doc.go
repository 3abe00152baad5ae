// Package ratelimit bounds outbound traffic to the catalog service.
//
// A Limiter combines a token bucket (fixed queries per second, burst of one)
// with an optional cap on concurrent in-flight requests. One Limiter is
// shared by every caller of a catalog connection; it is the single
// serialization point for catalog throughput.
package ratelimit
