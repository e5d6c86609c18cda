package auth

// Identity represents a normalized external authentication identity
// returned by an OAuth provider or the phone OTP flow. It contains facts only, no decisions.
type Identity struct {
	Provider       string // e.g. "google", "keycloak", "phone"
	ProviderUserID string // provider-scoped unique user identifier (sub, E.164 number)
	Email          string // email returned by provider, empty for phone identities
	EmailVerified  bool   // whether provider asserts email ownership
	Phone          string // E.164 phone number, phone identities only
}

// ProviderPhone is the provider name used for identities proven by SMS OTP.
const ProviderPhone = "phone"

// GuestPrefix starts every guest identifier, on the server and in clients.
const GuestPrefix = "guest_"

// User is the public view of an account, as returned to clients.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}
