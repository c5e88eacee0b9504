package booking

// Capability identifies the caller of a service operation. The transport
// layer authenticates the caller; the core only checks the capability it is
// handed.
type Capability struct {
	MemberID string
	Admin    bool
	Coach    bool
}

// Allows reports whether the capability may act on the member's resources.
// Admins may act on anyone.
func (capability Capability) Allows(memberID string) bool {
	if capability.Admin {
		return true
	}
	return capability.MemberID != "" && capability.MemberID == memberID
}
