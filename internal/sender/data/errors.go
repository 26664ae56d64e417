package data

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrServiceNotFound      = errors.New("service not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrAffiliateNotFound    = errors.New("affiliate not found")
	ErrVerificationNotFound = errors.New("payment verification not found")
	ErrTicketNotFound       = errors.New("support ticket not found")
)
