package app

import (
	"errors"

	"codecollab/api/internal/rbac"
	"codecollab/api/internal/store"
)

// requireRole is the single ownership check used by every mutating
// operation. It turns rbac.ErrDenied into a FORBIDDEN domain error.
func requireRole(entity rbac.Entity, caller Caller, relation rbac.Relation) error {
	if err := rbac.Require(entity, caller.UserID, relation); err != nil {
		if errors.Is(err, rbac.ErrDenied) {
			return authorizationError("only the " + string(relation) + " can modify this " + entity.Kind)
		}
		return err
	}
	return nil
}

func requirePermission(caller Caller, action rbac.Action) error {
	if !rbac.Can(rbac.Normalize(string(caller.Role)), action) {
		return authorizationError("role " + string(rbac.Normalize(string(caller.Role))) + " cannot " + string(action))
	}
	return nil
}

func submissionEntity(item store.Submission) rbac.Entity {
	return rbac.Entity{
		Kind:    "submission",
		ID:      item.ID,
		Holders: map[rbac.Relation]string{rbac.RelationOwner: item.OwnerID},
	}
}

func commentEntity(item store.Comment) rbac.Entity {
	return rbac.Entity{
		Kind:    "comment",
		ID:      item.ID,
		Holders: map[rbac.Relation]string{rbac.RelationAuthor: item.AuthorID},
	}
}

func attachmentEntity(item store.Attachment) rbac.Entity {
	return rbac.Entity{
		Kind:    "attachment",
		ID:      item.ID,
		Holders: map[rbac.Relation]string{rbac.RelationUploader: item.UploaderID},
	}
}
