// Package session owns the realtime connection lifecycle and the working
// session record it is bound to.
//
// The manager is the only writer of the connection state. Connect fetches a
// short-lived credential, hands the transport the persona graph and a tab
// context snapshot, then resumes the project's most recent unsaved working
// session rather than creating a duplicate. Session bookkeeping failures are
// logged, never rolled back; persistence is a convenience layer, not a
// precondition for conversing. A project switch while connected forces a
// disconnect, because the tab context the agent sees is bound at connect
// time and cannot follow the workspace.
package session
