// Package redis carries relay messages between server instances over Redis pub/sub.
//
// RelayBridge publishes through a circuit breaker so a Redis outage degrades to
// local delivery instead of failing the WebSocket sender.
package redis
