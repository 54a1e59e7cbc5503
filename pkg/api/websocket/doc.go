// Package websocket streams answer lifecycle events to clients.
package websocket
