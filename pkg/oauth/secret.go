package oauth

// Secret wraps a sensitive string to prevent accidental logging.
//
// Secret implements fmt.Stringer, fmt.GoStringer and the text and JSON
// marshalers so that formatting, slog attributes and serialization all
// produce "[REDACTED]" instead of the value.
//
// Usage:
//
//	secret := oauth.NewSecret("client-secret")
//	fmt.Println(secret)        // prints: [REDACTED]
//	actual := secret.Value()   // returns: "client-secret"
type Secret struct {
	value string
}

const redacted = "[REDACTED]"

// NewSecret creates a new Secret wrapping the given value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Value returns the actual secret value.
// Use it only when building an outgoing request. Never log the result.
func (s Secret) Value() string {
	return s.value
}

// String implements fmt.Stringer.
func (s Secret) String() string {
	return redacted
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "oauth.Secret{" + redacted + "}"
}

// IsEmpty returns true if the secret value is empty.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
