// Package types defines the shared domain model for the coordination core:
// projects and tabs, working sessions and transcript messages, connection
// and save status enums, and the single-slot timer state.
//
// Types here are plain data. Behavior lives in the owning manager packages
// (internal/domain/session, internal/domain/workspace, internal/domain/timer);
// no other component mutates another manager's state directly.
package types
