package certstore

// Secret holds a passphrase. Its formatting methods never reveal the value,
// so it is safe to pass to loggers and error messages.
type Secret string

const redacted = "[REDACTED]"

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer.
func (s Secret) GoString() string {
	return s.String()
}

// MarshalText implements encoding.TextMarshaler.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reveal returns the underlying passphrase.
func (s Secret) Reveal() string {
	return string(s)
}
