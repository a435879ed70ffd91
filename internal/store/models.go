package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Session is the server side of a login: the GitLab user it belongs to and the
// id shared by its refresh tokens and stored credential.
type Session struct {
	ID          string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// OAuthState is the pending authorize request identified by its state nonce.
type OAuthState struct {
	RedirectTo string    `json:"redirect_to"`
	CreatedAt  time.Time `json:"created_at"`
}
