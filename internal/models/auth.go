package models

import "github.com/golang-jwt/jwt/v5"

// UserRole enumerates the roles this service authorizes.
type UserRole string

const (
	RoleTeacher UserRole = "TEACHER"
	RoleAdmin   UserRole = "ADMIN"
)

// JWTClaims represents the JWT payload for access tokens issued by the
// platform's auth service. This service only verifies them.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
