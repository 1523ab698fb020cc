// Package orderbook is the matching core: orders with their lifecycle,
// FIFO price levels and a price-time priority book per security.
//
// Everything here is single-threaded and deterministic given the same
// clock readings and inputs. Events are delivered synchronously through
// OrderListener and OrderBookListener before the causing call returns.
// Orders and price levels are recycled through pools; listeners must not
// keep an *Order after its OnOrderTerminated.
package orderbook
