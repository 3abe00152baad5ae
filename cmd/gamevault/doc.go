// Command gamevault is the operator CLI. Library commands call the running
// daemon's HTTP API; search, status and webhook registration talk to the
// catalog directly.
package main
