package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/bookman/internal/model"
)

// PolicyEnforcer はRole・経路・メソッドの組に対するアクセス可否を判定する。
type PolicyEnforcer interface {
	Allowed(role, path, method string) (bool, error)
}

// NewAuthzMiddleware はRoleに基づくアクセス制御ミドルウェアを返す。
// 認証ミドルウェアの後に配置する。pathPrefixはポリシー照合の前に経路から取り除く。
// 拒否した場合は403 Forbiddenを返す。
func NewAuthzMiddleware(enforcer PolicyEnforcer, pathPrefix string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			path := strings.TrimPrefix(r.URL.Path, pathPrefix)
			allowed, err := enforcer.Allowed(string(role), path, r.Method)
			if err != nil {
				slog.Error("failed to evaluate access policy",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if !allowed {
				slog.Warn("access denied",
					slog.String("role", string(role)),
					slog.String("method", r.Method),
					slog.String("path", path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError("insufficient role"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
