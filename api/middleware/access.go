package middleware

import (
	"net/http"

	"github.com/forkline-app/forkline-backend/api/responses"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
)

// AccessRequirement declares which actor roles may reach a route group.
// An empty Roles slice means any authenticated actor.
type AccessRequirement struct {
	Roles []enums.ActorRole
}

// AnyAuthenticated admits every actor with valid credentials.
func AnyAuthenticated() AccessRequirement {
	return AccessRequirement{}
}

// RolesOnly admits only the listed roles.
func RolesOnly(roles ...enums.ActorRole) AccessRequirement {
	return AccessRequirement{Roles: roles}
}

// Allows reports whether the role satisfies the requirement.
func (req AccessRequirement) Allows(role enums.ActorRole) bool {
	if len(req.Roles) == 0 {
		return role.IsValid()
	}
	for _, allowed := range req.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// RequireAccess enforces the requirement against the authenticated role in context.
func RequireAccess(req AccessRequirement, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if !req.Allows(role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
