// Package api serves the operator control surface of the hub: health of the
// task store and the state of every background pipeline, which operators can
// stop and start again at runtime. It translates HTTP concerns to calls on
// pipeline supervisors and never touches tasks itself.
package api
