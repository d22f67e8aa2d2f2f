// Package conversation reconciles the message log against the upstream event stream.
//
// # Overview
//
// Log is the pure state machine: it holds the ordered messages, the loading and
// typing flags and the clear epoch, and applies one operation at a time.
// Reconciler wraps a Log in a single goroutine so that user commands and
// transport events are applied strictly one after another, and publishes
// immutable snapshots for rendering.
//
// # Merge rules
//
//   - chunk: append to the partial assistant message with the same timestamp,
//     or start a new partial message.
//   - complete: drop the partial with the same timestamp and append the final
//     message at the end of the log.
//   - full message: append verbatim.
//   - session cleared: empty the log and reset loading and typing.
//
// # Epochs
//
// ClearSession advances the epoch, retires every timestamp in the log and
// wipes it. Until the server acknowledges the clear, message traffic is
// treated as belonging to the old epoch and dropped. After the ack, chunks and
// completes for retired timestamps are still dropped.
//
// # Usage
//
//	r := conversation.NewReconciler(out, conversation.Options{Logger: logger})
//	go r.Run(ctx)
//	accepted, err := r.AppendUserMessage(ctx, "ping")
package conversation
