// Package memstore implements volatile in-memory artifact storage on a
// concurrent map. Artifacts exist only for the lifetime of the process.
package memstore
