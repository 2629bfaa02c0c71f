package errors

import "github.com/pkg/errors"

var (
	// mail source errors
	ErrMailConnection = errors.New("mailbox connection failed")
	ErrMailAuth       = errors.New("mailbox authentication failed")

	// store errors
	ErrUserNotFound = errors.New("user not found")

	// delivery errors
	ErrDeliveryRejected = errors.New("delivery sink rejected message")
)
