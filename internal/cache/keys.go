package cache

import "github.com/google/uuid"

// Keys names the redis entries and channels this service owns.
var Keys = struct {
	Thread func(id uuid.UUID) string
	User   func(id uuid.UUID) string
}{
	Thread: func(id uuid.UUID) string { return "thread-" + id.String() },
	User:   func(id uuid.UUID) string { return "user-" + id.String() },
}
