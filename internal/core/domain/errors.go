package domain

import (
	"errors"
	"fmt"
)

var (
	ErrWatchlistFull      = errors.New("watch-list is full")
	ErrAlreadyWatched     = errors.New("channel already on watch-list")
	ErrNotWatched         = errors.New("channel not on watch-list")
	ErrInvalidChannel     = errors.New("invalid channel login")
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrCredentialRejected = errors.New("credential rejected by remote")
)

// AuthError reports that a credential could not be issued.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credential issuance failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// FetchError reports a failed remote status or profile call.
type FetchError struct {
	Call string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed: %v", e.Call, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ProtocolError reports an inbound client message that could not be decoded.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
