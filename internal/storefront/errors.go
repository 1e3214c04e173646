package storefront

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalid    = errors.New("invalid request")
	ErrOutOfStock = errors.New("insufficient stock")
)
