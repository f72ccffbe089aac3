package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/oakbooks/oakbooks/internal/identity"
)

// Claims are the verified token claims the API trusts. Token issuance lives
// in the identity service; this middleware only verifies and decodes.
type Claims struct {
	jwt.RegisteredClaims

	OrganizationID         string `json:"org_id"`
	BranchID               string `json:"branch_id,omitempty"`
	CanPostTransactions    bool   `json:"can_post_transactions"`
	CanReverseTransactions bool   `json:"can_reverse_transactions"`
	CanManageAccounts      bool   `json:"can_manage_accounts"`
}

// Middleware verifies the bearer token and attaches the resulting actor to
// the request context.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			var claims Claims

			_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}

				return secret, nil
			})
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			actor, err := actorFromClaims(&claims)
			if err != nil {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithActor(r.Context(), actor)))
		})
	}
}

func actorFromClaims(claims *Claims) (identity.Actor, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return identity.Actor{}, err
	}

	orgID, err := uuid.Parse(claims.OrganizationID)
	if err != nil {
		return identity.Actor{}, err
	}

	actor := identity.Actor{
		UserID:                 userID,
		OrganizationID:         orgID,
		CanPostTransactions:    claims.CanPostTransactions,
		CanReverseTransactions: claims.CanReverseTransactions,
		CanManageAccounts:      claims.CanManageAccounts,
	}

	if claims.BranchID != "" {
		branchID, err := uuid.Parse(claims.BranchID)
		if err != nil {
			return identity.Actor{}, err
		}

		actor.BranchID = &branchID
	}

	return actor, nil
}

// RequirePosting rejects requests whose actor lacks the posting permission.
func RequirePosting(next http.Handler) http.Handler {
	return requirePermission(next, func(a identity.Actor) bool { return a.CanPostTransactions })
}

// RequireReversal rejects requests whose actor cannot void or reverse.
func RequireReversal(next http.Handler) http.Handler {
	return requirePermission(next, func(a identity.Actor) bool { return a.CanReverseTransactions })
}

// RequireAccounts rejects requests whose actor cannot manage the chart of
// accounts.
func RequireAccounts(next http.Handler) http.Handler {
	return requirePermission(next, func(a identity.Actor) bool { return a.CanManageAccounts })
}

func requirePermission(next http.Handler, allowed func(identity.Actor) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := identity.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		if !allowed(actor) {
			http.Error(w, "permission denied", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
