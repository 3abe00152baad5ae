// Package ranking scores catalog search results against a raw store title.
//
// A score in [0,1] is the weighted combination of title similarity, a
// release-year match and a platform overlap. Weights for hints the entry
// does not carry drop out of the denominator, so an entry with only a title
// can still reach 1.0. Results are ordered by score, then popularity, then
// ascending catalog ID, which makes the order total and reproducible.
package ranking
