// Package webhooks ingests catalog update notifications.
//
// Every event passes three stages. Prefilter and Rules.Filter are pure
// classifiers that reject events the library never needs. The exception
// stage wraps the fetch and resolver update; any error or panic there is
// turned into a RejectionException and the event is stored for retry.
//
// The HTTP handler authenticates the catalog's X-Secret header and hands
// events to a Dispatcher, which routes each event to a lane by game ID so
// updates for one game are processed in arrival order.
package webhooks
