// Package style keeps compiled block stylesheets registered against a live,
// ordered style registry.
//
// The Registry interface is the attach/detach primitive (the equivalent of a
// document's adopted stylesheet list). Document is the in-process
// implementation. Registrar layers keyed registration on top: at most one
// sheet per key, and replacing a key appends the new sheet before removing
// the old one, so an observer never sees the key without a sheet.
package style
