package domain

import "time"

// MethodAll matches every HTTP method.
const MethodAll = "ALL"

// SecuredResource maps a request pattern to the authorities required to
// access it.
type SecuredResource struct {
	ID          string   `bson:"_id"         json:"id"`
	Pattern     string   `bson:"pattern"     json:"pattern"`
	Method      string   `bson:"method"      json:"method"`
	Authorities []string `bson:"authorities" json:"authorities"`
}

// Resource change operations.
const (
	ResourceSaved   = "saved"
	ResourceDeleted = "deleted"
)

// ResourceChanged is published after a change to a secured resource has been
// durably committed. It is never published for a rolled back change.
type ResourceChanged struct {
	ResourceID  string    `json:"resource_id"`
	Op          string    `json:"op"`
	CommittedAt time.Time `json:"committed_at"`
}
