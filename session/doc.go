// Package session defines the typed session record produced by a completed
// login and the Store interface applications use to persist it. Concrete
// backends live in the memory and valkey subpackages.
package session
