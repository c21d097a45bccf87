package middleware

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// RequireStaffRole admits only staff whose token role is one of allowed.
// It must run after StaffAuth.
func RequireStaffRole(logg *logger.Logger, allowed ...enums.StaffRole) func(http.Handler) http.Handler {
	permitted := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		permitted[string(role)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := StaffRoleFromContext(r.Context())
			if _, ok := permitted[role]; ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := logg.WithField(r.Context(), "staff_role", role)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "staff role not permitted"))
		})
	}
}
