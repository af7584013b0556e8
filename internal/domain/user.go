// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxDisplayNameLen = 36
	MaxRoomNameLen    = 64
	DefaultName       = "guest"
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrRoomNameEmpty      = errors.New("room name empty")
	ErrRoomNameTooLong    = errors.New("room name too long")
)

// NormalizeDisplayName trims name and falls back to DefaultName when empty.
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultName, nil
	}
	if len(name) > MaxDisplayNameLen {
		return "", ErrDisplayNameTooLong
	}
	return name, nil
}

func ParseRoomName(raw string) (RoomName, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrRoomNameEmpty
	}
	if len(raw) > MaxRoomNameLen {
		return "", ErrRoomNameTooLong
	}
	return RoomName(raw), nil
}
