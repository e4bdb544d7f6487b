// Package httpapi exposes the inbox pipeline over HTTP: the Baileys webhook
// endpoint, conversation status changes and conversation reads. Commands and
// queries go through the go-command dispatcher, so the inbox handlers must be
// registered with adapters/gocommand before serving.
package httpapi
