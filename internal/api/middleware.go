/**
 * @description
 * This file contains the authentication middleware for the payment-service.
 * It validates HS256-signed bearer tokens and exposes the authenticated
 * user's identity to handlers through the request context.
 *
 * @dependencies
 * - net/http, context, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: For JWT parsing and validation.
 * - github.com/google/uuid: For validating the subject claim.
 */

package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserIDContextKey is the type used for storing the user ID in the request context.
type UserIDContextKey string

const (
	userIDKey    UserIDContextKey = "userID"
	userEmailKey UserIDContextKey = "userEmail"
	userNameKey  UserIDContextKey = "userName"
)

// AuthMiddleware validates the Authorization bearer token and injects the
// authenticated user's UUID into the request context.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error": "missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, `{"error": "malformed authorization header"}`, http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				log.Printf("level=warn component=auth msg=\"token validation failed\" err=%v", err)
				http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, `{"error": "invalid token claims"}`, http.StatusUnauthorized)
				return
			}

			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				http.Error(w, `{"error": "missing subject claim"}`, http.StatusUnauthorized)
				return
			}
			if _, err := uuid.Parse(subject); err != nil {
				http.Error(w, `{"error": "invalid subject claim"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, subject)
			if email, ok := claims["email"].(string); ok {
				ctx = context.WithValue(ctx, userEmailKey, email)
			}
			if name, ok := claims["name"].(string); ok {
				ctx = context.WithValue(ctx, userNameKey, name)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID retrieves the authenticated user's ID from the request context.
// Handlers should use this function to get the authenticated user's ID.
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

// GetUserProfile retrieves the optional email and name claims, used when a
// collection account has to be provisioned for the user.
func GetUserProfile(ctx context.Context) (email, name string) {
	email, _ = ctx.Value(userEmailKey).(string)
	name, _ = ctx.Value(userNameKey).(string)
	return email, name
}
