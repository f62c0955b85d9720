// Package engine orchestrates the compile and run workflows. It stages the
// source into the working directory, boots a guest through a backend.Host,
// drives the GFA-BASIC tools with keystroke macros and waits on the files
// they write. Every state transition is persisted to the store and published
// to subscribers.
package engine
