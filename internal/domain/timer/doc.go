// Package timer owns the single countdown slot and the milestone relay.
//
// One TimerState exists at a time; Start replaces it wholesale, including
// the triggered-tag set. A fixed-period poll evaluates milestones in
// threshold order and each tag fires at most once per timer, so pausing and
// resuming never replays a notification. Fired milestones become bracketed
// synthetic user turns delivered through the transport's text capability and
// appended hidden to the transcript; while disconnected the relay is a
// silent no-op and missed milestones are not replayed.
package timer
