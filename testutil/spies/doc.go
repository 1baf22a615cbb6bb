// Package spies provides recording test doubles for the collaborators of the circulation engine:
// loggers, metrics and tracing collectors, notifiers and journals.
//
// Every spy is safe for concurrent use and returns copies of what it recorded.
package spies
