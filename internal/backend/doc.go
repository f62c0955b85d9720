// Package backend defines the interface every emulator host implements, the
// session handle returned when a guest boots, and a registry that resolves
// hosts by name.
package backend
