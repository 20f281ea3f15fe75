// Package model defines the dock reference data and the dock event lifecycle
// shared by the broker, the stores and the session reconcilers.
package model
