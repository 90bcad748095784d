package models

import "github.com/golang-jwt/jwt/v5"

// UserRole enumerates portal roles relevant to the workflow.
type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleFaculty UserRole = "FACULTY"
	RoleAdmin   UserRole = "ADMIN"
)

// JWTClaims represents the JWT payload for access tokens issued by the portal.
type JWTClaims struct {
	UserID        string   `json:"user_id"`
	Role          UserRole `json:"role"`
	Email         string   `json:"email"`
	FullName      string   `json:"full_name"`
	InstitutionID string   `json:"institution_id,omitempty"`
	jwt.RegisteredClaims
}
