// Command server runs the voxwork coordination service: session lifecycle,
// workspace autosave, and the timer relay behind one HTTP and WebSocket
// surface.
package main
