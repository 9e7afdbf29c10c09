// Package collection defines the resource collections exposed by the source API.
package collection

import (
	"fmt"
	"strings"
)

// Collection identifies one ingestible resource type.
type Collection string

const (
	// Users is the /users collection.
	Users Collection = "users"

	// Tracks is the /tracks collection.
	Tracks Collection = "tracks"

	// ListenHistory is the /listen_history collection.
	ListenHistory Collection = "listen_history"
)

// All returns every known collection in a stable order.
func All() []Collection {
	return []Collection{Users, Tracks, ListenHistory}
}

// Endpoint returns the source API path for the collection (e.g. "/users").
func (c Collection) Endpoint() string {
	return "/" + string(c)
}

// Table returns the target table name rows of this collection are written to.
func (c Collection) Table() string {
	return string(c)
}

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	switch c {
	case Users, Tracks, ListenHistory:
		return true
	default:
		return false
	}
}

func (c Collection) String() string {
	return string(c)
}

// Parse accepts an endpoint path ("/users") or a bare name ("users").
func Parse(s string) (Collection, error) {
	name := strings.ToLower(strings.Trim(strings.TrimSpace(s), "/"))
	c := Collection(name)
	if !c.Valid() {
		return "", fmt.Errorf("unknown collection %q", s)
	}
	return c, nil
}
