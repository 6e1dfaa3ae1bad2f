package crm

const redactedPlaceholder = "[redacted]"

// APIKey wraps a provider secret so it cannot leak through logging or
// serialization. The raw value is only reachable through Reveal, which
// adapters call at the moment the outbound request is built.
type APIKey struct {
	value string
}

// NewAPIKey wraps a raw secret string.
func NewAPIKey(value string) APIKey {
	return APIKey{value: value}
}

// Reveal returns the underlying secret.
func (k APIKey) Reveal() string {
	return k.value
}

// IsZero reports whether no secret has been set.
func (k APIKey) IsZero() bool {
	return k.value == ""
}

// String implements fmt.Stringer and always redacts.
func (k APIKey) String() string {
	return redactedPlaceholder
}

// GoString redacts %#v formatting as well.
func (k APIKey) GoString() string {
	return "crm.APIKey(" + redactedPlaceholder + ")"
}

// MarshalJSON redacts the secret in any JSON encoding path.
func (k APIKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}
