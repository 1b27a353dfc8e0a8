package model

// User is an account record. The messaging core never mutates users; it only
// resolves identifiers and reads display fields.
type User struct {
	// ID is the storage-internal identifier, used for foreign keys.
	ID string `json:"id"`
	// ExternalID is the stable externally-issued identifier carried in
	// tokens and used for room routing.
	ExternalID string `json:"user_id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
}

// Identity is a verified caller, produced once at the auth boundary. Every
// store operation downstream takes InternalID; ExternalID appears only in
// wire payloads.
type Identity struct {
	InternalID  string `json:"id"`
	ExternalID  string `json:"user_id"`
	DisplayName string `json:"username"`
	Email       string `json:"-"`
}

// UserRef is the display-resolved shape of a message sender or receiver.
type UserRef struct {
	ID         string `json:"id"`
	ExternalID string `json:"user_id"`
	Username   string `json:"username"`
}

// Ref returns the display shape of a user.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, ExternalID: u.ExternalID, Username: u.Username}
}
