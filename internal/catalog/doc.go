// Package catalog talks to the external game catalog service.
//
// Connection is the only gate to the network: it holds the client ID, the
// access token source and the shared rate limiter, and classifies responses
// into transient, authentication and validation failures without retrying.
// BatchClient sits on top and owns paging, bounded fan-out, and retries with
// exponential backoff, reporting a result or error for every requested key.
//
// Requests use the catalog's text query language, for example:
//
//	fields *; where id = (220,221); limit 2;
//	search "half-life 2"; fields *; where platforms = (6,13); limit 20;
package catalog
