package domain

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrVolumeNotFound = errors.New("cache volume not found")
	ErrNoFreeVolume   = errors.New("no cache volume with enough free space")
	ErrUserExists     = errors.New("user already exists")
)
