package oidc

import "github.com/golang-jwt/jwt/v5"

const (
	tokenUseID     = "id"
	tokenUseAccess = "access"
)

// Claims is the payload of both id and access tokens.
type Claims struct {
	TokenUse string `json:"token_use"`
	Email    string `json:"email,omitempty"`
	Username string `json:"preferred_username,omitempty"`
	Role     string `json:"role,omitempty"`
	Picture  string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// TokenSet is the body of a successful token response.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}
