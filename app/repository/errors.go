package repository

import "errors"

var (
	ErrOrderNotFound            = errors.New("payment order not found")
	ErrOrderExists              = errors.New("payment order already exists")
	ErrProviderOrderIDImmutable = errors.New("provider order id already assigned")
	ErrMemberNotFound           = errors.New("member not found")
)
