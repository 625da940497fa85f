// Package accesspoint stores the doors, gates and turnstiles the gateway
// controls.
//
// An access point has a unique alias and names the controller module that
// drives it (for example "wiegand" or "doorman"). Updates bump a version
// counter so clients can detect concurrent edits.
package accesspoint
