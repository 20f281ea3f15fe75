// Package broker is the single authority for dock event identity. It
// validates completion requests against the dock catalog, mints ids and
// timestamps, persists through a store.EventStore and fans creation and
// acknowledgement notifications out to every attached session.
//
// All mutations run on one writer goroutine started by Run, so identity
// assignment and status transitions never race. Notifications are published
// from that goroutine, which keeps each session's stream in the order the
// writer applied the changes. Delivery to a session is independent of every
// other session: a full session queue drops the notification for that session
// only, and the session recovers with a sync.
package broker
