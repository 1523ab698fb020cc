// Package memory provides the object pools and deferred-release ring the
// order books recycle orders and price levels through, plus a monitor that
// stops the pools from handing out objects when the heap grows past a
// configured limit.
package memory
