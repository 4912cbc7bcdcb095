package models

import (
	"math/big"
	"time"
)

// User is the off-chain profile record in the Supabase "User" table.
type User struct {
	ID *string `json:"id,omitempty"`

	// WalletAddress is stored lowercase in the Blk_Id column
	WalletAddress string     `json:"Blk_Id"`
	ProfileName   string     `json:"profile_name"`
	ProfileID     string     `json:"profile_id"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// CreateUserRequest is the request body for registering a profile record
type CreateUserRequest struct {
	WalletAddress string `json:"wallet_address" validate:"required"`
	ProfileName   string `json:"profile_name" validate:"required,max=64"`
	ProfileID     string `json:"profile_id" validate:"required,numeric"`
}

// UpdateUserRequest holds the fields a profile record may change
type UpdateUserRequest struct {
	ProfileName *string `json:"profile_name,omitempty" validate:"omitempty,min=1,max=64"`
	ProfileID   *string `json:"profile_id,omitempty" validate:"omitempty,numeric"`
}

// UserExistsResponse is returned by the existence check
type UserExistsResponse struct {
	Exists bool  `json:"exists"`
	User   *User `json:"user,omitempty"`
}

// Profile is the on-chain dating profile minted as an NFT.
type Profile struct {
	Name      string   `json:"name"`
	Age       *big.Int `json:"age"`
	Interests string   `json:"interests"`
	URI       string   `json:"uri"`
	Owner     string   `json:"owner"`
}

// ContactType tells how a contact was matched on chain
type ContactType string

const (
	ContactMatch      ContactType = "match"
	ContactSuperMatch ContactType = "super_match"
)

// ProfileCard is a wallet with the profile it minted, if any.
type ProfileCard struct {
	Address string   `json:"address"`
	TokenID *big.Int `json:"token_id,omitempty"`
	Profile *Profile `json:"profile,omitempty"`
}

// Contact is one entry of the chat sidebar.
type Contact struct {
	ProfileCard
	Type        ContactType `json:"type"`
	LastMessage *Message    `json:"last_message,omitempty"`
}

// LikesResponse lists who liked a wallet and whom it liked.
type LikesResponse struct {
	Incoming []ProfileCard `json:"incoming"`
	Outgoing []ProfileCard `json:"outgoing"`
}

// DiscoverResponse is the profile deck of the match page.
type DiscoverResponse struct {
	TotalProfiles *big.Int      `json:"total_profiles"`
	Profiles      []ProfileCard `json:"profiles"`
}

// UploadResponse is returned after storing an image
type UploadResponse struct {
	URL string `json:"url"`
}
