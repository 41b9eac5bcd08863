package jwttoken

import (
	"corecompliance/internal/platform/middleware"
)

// JWTServiceAdapter bridges JWTService to the middleware's validator
// interface so the middleware package never imports jwt internals.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{UserID: claims.UserID}, nil
}
