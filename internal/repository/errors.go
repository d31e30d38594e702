package repository

import "github.com/pkg/errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	ErrReserved  = errors.New("id belongs to a regular account")
)
