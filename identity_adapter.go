package auth

// RecordIdentity adapts a UserRecord into the Identity interface.
type RecordIdentity struct {
	record *UserRecord
}

// NewIdentityFromRecord returns an Identity adapter for the provided record.
func NewIdentityFromRecord(record *UserRecord) Identity {
	if record == nil {
		return nil
	}
	return RecordIdentity{record: record}
}

// ID returns the subject id.
func (u RecordIdentity) ID() string {
	if u.record == nil {
		return ""
	}
	return u.record.SubjectID
}

// Email returns the user's email address.
func (u RecordIdentity) Email() string {
	if u.record == nil {
		return ""
	}
	return u.record.Email
}

// Role returns the user's role as a string.
func (u RecordIdentity) Role() string {
	if u.record == nil {
		return ""
	}
	return string(u.record.Role)
}

// Record exposes the wrapped record.
func (u RecordIdentity) Record() *UserRecord {
	return u.record
}
