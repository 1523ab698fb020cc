//go:build exsimdebug

package orderbook

const debugContracts = true
