package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRecord is the local application identity for one external subject.
type UserRecord struct {
	bun.BaseModel `bun:"table:user_records,alias:usr" bson:"-" json:"-"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" bson:"_id" json:"id"`
	SubjectID     string     `bun:"subject_id,notnull,unique" bson:"subject_id" json:"subject_id"`
	Email         string     `bun:"email,notnull,unique" bson:"email" json:"email"`
	DisplayName   string     `bun:"display_name" bson:"display_name" json:"display_name"`
	PhotoURL      string     `bun:"photo_url" bson:"photo_url" json:"photo_url"`
	Provider      Provider   `bun:"provider,notnull" bson:"provider" json:"provider"`
	EmailVerified bool       `bun:"email_verified,notnull" bson:"email_verified" json:"email_verified"`
	Role          Role       `bun:"role,notnull" bson:"role" json:"role"`
	IsActive      bool       `bun:"is_active,notnull" bson:"is_active" json:"is_active"`
	Profile       *Profile   `bun:"profile,type:jsonb" bson:"profile,omitempty" json:"profile,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" bson:"updated_at" json:"updated_at"`
	LastLoginAt   *time.Time `bun:"last_login_at,nullzero" bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
}

// Profile is the optional, user owned part of a record. Every field is
// independently nullable.
type Profile struct {
	FirstName *string `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName  *string `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Phone     *string `bson:"phone,omitempty" json:"phone,omitempty"`
	Country   *string `bson:"country,omitempty" json:"country,omitempty"`
}

// IsEmpty reports whether no profile field is set.
func (p *Profile) IsEmpty() bool {
	return p == nil || (p.FirstName == nil && p.LastName == nil && p.Phone == nil && p.Country == nil)
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	return &Profile{
		FirstName: cloneString(p.FirstName),
		LastName:  cloneString(p.LastName),
		Phone:     cloneString(p.Phone),
		Country:   cloneString(p.Country),
	}
}

// Clone returns a deep copy of the record.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	out := *u
	out.Profile = u.Profile.Clone()
	if u.LastLoginAt != nil {
		at := *u.LastLoginAt
		out.LastLoginAt = &at
	}
	return &out
}

// ProfileUpdate carries the fields a profile update may change. A nil pointer
// leaves the stored value alone, a pointer to "" clears it.
type ProfileUpdate struct {
	DisplayName *string  `json:"display_name,omitempty"`
	Profile     *Profile `json:"profile,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (p ProfileUpdate) IsEmpty() bool {
	return p.DisplayName == nil && p.Profile.IsEmpty()
}

// ChangedFields lists the field names the update touches, used in audit detail.
func (p ProfileUpdate) ChangedFields() []string {
	var fields []string
	if p.DisplayName != nil {
		fields = append(fields, "display_name")
	}
	if p.Profile == nil {
		return fields
	}
	if p.Profile.FirstName != nil {
		fields = append(fields, "profile.first_name")
	}
	if p.Profile.LastName != nil {
		fields = append(fields, "profile.last_name")
	}
	if p.Profile.Phone != nil {
		fields = append(fields, "profile.phone")
	}
	if p.Profile.Country != nil {
		fields = append(fields, "profile.country")
	}
	return fields
}

// Apply merges the update into the record in place.
func (p ProfileUpdate) Apply(record *UserRecord) {
	if p.DisplayName != nil {
		record.DisplayName = *p.DisplayName
	}
	if p.Profile == nil {
		return
	}
	merged := record.Profile.Clone()
	if merged == nil {
		merged = &Profile{}
	}
	merged.FirstName = mergeField(merged.FirstName, p.Profile.FirstName)
	merged.LastName = mergeField(merged.LastName, p.Profile.LastName)
	merged.Phone = mergeField(merged.Phone, p.Profile.Phone)
	merged.Country = mergeField(merged.Country, p.Profile.Country)
	if merged.IsEmpty() {
		merged = nil
	}
	record.Profile = merged
}

func mergeField(current, next *string) *string {
	if next == nil {
		return current
	}
	if *next == "" {
		return nil
	}
	return cloneString(next)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ActivityLogEntry is one append only audit event.
type ActivityLogEntry struct {
	bun.BaseModel `bun:"table:activity_log,alias:act" bson:"-" json:"-"`
	ID            uuid.UUID        `bun:"id,pk,type:uuid" bson:"_id" json:"id"`
	SubjectID     string           `bun:"subject_id,notnull" bson:"subject_id" json:"subject_id"`
	Category      ActivityCategory `bun:"category,notnull" bson:"category" json:"category"`
	Detail        map[string]any   `bun:"detail,type:jsonb" bson:"detail,omitempty" json:"detail,omitempty"`
	ClientOrigin  string           `bun:"client_origin" bson:"client_origin" json:"client_origin"`
	OccurredAt    time.Time        `bun:"occurred_at,notnull" bson:"occurred_at" json:"occurred_at"`
}
