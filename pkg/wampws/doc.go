// Package wampws is a WAMP v1 client that speaks WebSocket directly over a
// TCP (or TLS) stream.
//
// The transport is split into small packages: endpoint resolves the server
// URL, handshake performs the HTTP upgrade, frame encodes and decodes
// WebSocket frames, and protocol builds and parses the WAMP JSON arrays.
// Package session ties them together into a Session with Connect, Prefix,
// Call, Publish, Event, Subscribe and Listen.
//
// Inbound messages are delivered to a Subscriber.
package wampws
