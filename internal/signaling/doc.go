// Package signaling contains the call-signaling hub and its WebSocket
// transport.
//
// The hub maps logical user identifiers to live connections, tracks which
// users are idle or in a call, and relays offers, answers, ICE candidates and
// chat messages between them. Handshake payloads are opaque JSON values
// that are passed through without interpretation.
package signaling
