// Package extension provides run-time registries for action services and
// user-defined Go types (for example custom findings payload types).
//
// The registries are normally populated through the public APIs under the
// root autarch package, therefore most applications do not need to import
// this package directly.
package extension
