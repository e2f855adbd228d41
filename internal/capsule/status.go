package capsule

import "fmt"

// Status is the lifecycle state of a capsule.
//
// The set is closed: the only values are the package-level vars below and
// whatever ParseStatus returns for stored rows. There is no way to decode a
// Status from caller-supplied JSON, so request payloads cannot carry one.
type Status struct {
	name string
}

var (
	Sealed  = Status{"sealed"}
	Ready   = Status{"ready"}
	Opened  = Status{"opened"}
	Expired = Status{"expired"}
)

var statusByName = map[string]Status{
	Sealed.name:  Sealed,
	Ready.name:   Ready,
	Opened.name:  Opened,
	Expired.name: Expired,
}

// ParseStatus maps a stored status string back to a Status.
func ParseStatus(s string) (Status, error) {
	st, ok := statusByName[s]
	if !ok {
		return Status{}, fmt.Errorf("unknown capsule status %q", s)
	}
	return st, nil
}

// String returns the status name.
func (s Status) String() string { return s.name }

// IsZero reports whether s is the zero value.
func (s Status) IsZero() bool { return s.name == "" }

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.name), nil
}

// StatusNames lists valid status names, in lifecycle order.
func StatusNames() []string {
	return []string{Sealed.name, Ready.name, Opened.name, Expired.name}
}
