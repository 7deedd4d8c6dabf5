package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const operatorKey contextKey = "operator"

// Operator identifies the lab staff member behind an admin request.
type Operator struct {
	Subject string
	LabID   string
}

// OperatorClaims are the claims carried by admin tokens. LabID scopes the
// operator to one lab; empty means all labs.
type OperatorClaims struct {
	LabID string `json:"lab_id,omitempty"`
	jwt.RegisteredClaims
}

// AdminJWT enforces an HS256-signed operator token on admin routes.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "admin auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			claims := &OperatorClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
			if err != nil || !token.Valid || claims.Subject == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			op := Operator{Subject: claims.Subject, LabID: claims.LabID}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorKey, op)))
		})
	}
}

// OperatorFromContext returns the authenticated operator, if any.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey).(Operator)
	return op, ok
}

// CanAccessLab reports whether the operator may act on labID.
func (o Operator) CanAccessLab(labID string) bool {
	return o.LabID == "" || o.LabID == labID
}
