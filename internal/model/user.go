package model

import "time"

// User represents an account record as stored in the `users` table.
// The password is only ever held as a bcrypt hash; the plaintext never
// reaches this struct.  Optional profile columns are empty strings when
// NULL in the database.
//
// Fields:
//  ID           – primary key assigned by the store.
//  Email        – unique, normalized (lower-cased, trimmed) address.
//  PasswordHash – bcrypt hash of the password.
//  Username     – optional unique handle.
//  FirstName    – optional given name.
//  LastName     – optional family name.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    PasswordHash string    // users.password
    Username     string    // users.username (nullable)
    FirstName    string    // users.first_name (nullable)
    LastName     string    // users.last_name (nullable)
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}

// NewUser carries the values needed to insert a user row.  PasswordHash
// must already be hashed by the caller.
type NewUser struct {
    Email        string
    PasswordHash string
    Username     string
    FirstName    string
    LastName     string
}

// RefreshToken models the single row in `refresh_tokens` a user may own.
// An empty Token means the column is NULL: the user logged out and has no
// active session, but the row is kept so the next login reuses it.
//
// Fields:
//  ID     – primary key identifier.
//  UserID – owner of the row (unique).
//  Token  – the signed refresh token, or "" when cleared.
type RefreshToken struct {
    ID     uint64 `json:"id"`      // refresh_tokens.id
    UserID uint64 `json:"user_id"` // refresh_tokens.user_id
    Token  string `json:"token"`   // refresh_tokens.token (nullable)
}

// Active reports whether the row holds a session token.
func (t RefreshToken) Active() bool { return t.Token != "" }
