package service

import "errors"

var (
	ErrValidation         = errors.New("validation error")
	ErrInvalidCredentials = errors.New("authentication failed, invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserExists         = errors.New("user already exists")
	ErrNotFound           = errors.New("file not found")
	ErrIntegrity          = errors.New("file metadata has no matching blob")
	ErrInternal           = errors.New("internal error")
)
