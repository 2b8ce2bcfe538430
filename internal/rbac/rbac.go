// Package rbac holds the two authorization checks of the engine: platform
// roles carried on the caller's token, and per-entity relations such as
// "owner of this submission".
package rbac

import (
	"errors"
	"fmt"
)

type Role string
type Action string
type Relation string

const (
	RoleMember   Role = "authenticated"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionDecide   Action = "decide"
	ActionModerate Action = "moderate"
)

const (
	RelationOwner    Relation = "owner"
	RelationAuthor   Relation = "author"
	RelationUploader Relation = "uploader"
)

var ErrDenied = errors.New("permission denied")

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleReviewer:
		return action == ActionRead || action == ActionWrite || action == ActionDecide
	case RoleMember:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleReviewer, RoleAdmin:
		return Role(role)
	default:
		return RoleMember
	}
}

// Entity describes who holds which relation on a stored record.
type Entity struct {
	Kind    string
	ID      string
	Holders map[Relation]string
}

// Require reports whether callerID holds relation on entity. The returned
// error wraps ErrDenied.
func Require(entity Entity, callerID string, relation Relation) error {
	holder, ok := entity.Holders[relation]
	if !ok || holder == "" || callerID == "" || holder != callerID {
		return fmt.Errorf("%s %s requires %s: %w", entity.Kind, entity.ID, relation, ErrDenied)
	}
	return nil
}
