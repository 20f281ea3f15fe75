// Package reconcile maintains one session's view of dock events. It merges
// three inputs into a deduplicated list ordered most recent first:
//
//   - sync results fetched on connect and reconnect,
//   - creation and acknowledgement notifications broadcast by the broker,
//   - optimistic placeholders inserted the moment a user acts.
//
// Notification handling is idempotent: every creation id and acknowledgement
// id is remembered in a bounded set, so redelivered messages leave the view
// unchanged. Status only moves forward, so a stale copy never downgrades an
// acknowledged entry.
package reconcile
