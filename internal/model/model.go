// Package model defines domain entities shared by the API client and session layers.
package model

import "encoding/json"

// Tokens collects an issued access/refresh token pair.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Credentials is the login request body. The server expects capitalized keys.
type Credentials struct {
	Email    string `json:"Email"`
	Password string `json:"Password"`
}

// UserRegistration is the sign-up request body for diner accounts.
type UserRegistration struct {
	Name     string `json:"Name"`
	Email    string `json:"Email"`
	Password string `json:"Password"`
	Phone    string `json:"Phone,omitempty"`
}

// CompanyRegistration is the sign-up request body for restaurant/business accounts.
type CompanyRegistration struct {
	Name     string `json:"Name"`
	Email    string `json:"Email"`
	Password string `json:"Password"`
	Phone    string `json:"Phone,omitempty"`
	Address  string `json:"Address,omitempty"`
}

// Profile discriminator values.
const (
	ProfileUser    = "User"
	ProfileCompany = "Company"
)

// Profile is the locally cached account record, a tagged union over
// diner and business accounts.
type Profile struct {
	Type    string `json:"type"` // ProfileUser or ProfileCompany
	ID      int64  `json:"id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// AuthResponse is the body returned by login/register endpoints.
// Exactly one of User or Company is set.
type AuthResponse struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         json.RawMessage `json:"user,omitempty"`
	Company      json.RawMessage `json:"company,omitempty"`
}

// accountInfo is the wire shape of user/company objects inside AuthResponse.
type accountInfo struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// ProfileFromAuth normalizes an auth response into the tagged-union Profile.
// It reports false when the response carries neither a user nor a company.
func ProfileFromAuth(ar AuthResponse) (Profile, bool) {
	var (
		raw json.RawMessage
		typ string
	)
	switch {
	case len(ar.Company) > 0:
		raw, typ = ar.Company, ProfileCompany
	case len(ar.User) > 0:
		raw, typ = ar.User, ProfileUser
	default:
		return Profile{}, false
	}
	var info accountInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return Profile{}, false
	}
	return Profile{
		Type:    typ,
		ID:      info.ID,
		Name:    info.Name,
		Email:   info.Email,
		Phone:   info.Phone,
		Address: info.Address,
	}, true
}
