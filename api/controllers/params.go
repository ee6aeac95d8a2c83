package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forkline-app/forkline-backend/api/middleware"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
)

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

// requestActor resolves the authenticated user into the actor reference
// stamped onto domain events.
func requestActor(r *http.Request) (uuid.UUID, *outbox.ActorRef, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role := middleware.RoleFromContext(r.Context())
	return userID, &outbox.ActorRef{UserID: userID, Role: role.String()}, nil
}

func cancelActorForRole(role enums.ActorRole) enums.CancelActor {
	switch role {
	case enums.ActorRoleVendor:
		return enums.CancelActorVendor
	case enums.ActorRoleAdmin, enums.ActorRoleOps:
		return enums.CancelActorAdmin
	default:
		return enums.CancelActorCustomer
	}
}
