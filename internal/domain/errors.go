package domain

import "errors"

var (
	ErrUnknownAction      = errors.New("unknown action")
	ErrUnknownConnection  = errors.New("unknown connection name")
	ErrMissingTabID       = errors.New("content connection has no tab id")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrPeerNotFound       = errors.New("peer not found")
	ErrHubStopped         = errors.New("hub stopped")
	ErrSettingNotFound    = errors.New("setting not found")
	ErrCredentialNotFound = errors.New("credential not found")
)
