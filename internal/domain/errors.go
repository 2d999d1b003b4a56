package domain

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrEmailRequired   = errors.New("email is required")
	ErrOwnerNotFound   = errors.New("owner not found")
	ErrContainerExists = errors.New("project container already exists")
	ErrProjectNotFound = errors.New("project not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrInvalidField    = errors.New("invalid task field")
)
