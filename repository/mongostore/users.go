package mongostore

import (
	"context"
	"errors"
	"strings"
	"time"

	auth "github.com/goliatone/go-growth-auth"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Users is the Mongo backed auth.Directory. BSON dates hold milliseconds,
// so every stamp written here is truncated to the millisecond.
type Users struct {
	coll *mongo.Collection
}

var _ auth.Directory = (*Users)(nil)

// NewUsers wraps the collection.
func NewUsers(coll *mongo.Collection) *Users {
	return &Users{coll: coll}
}

func (u *Users) GetBySubject(ctx context.Context, subjectID string) (*auth.UserRecord, error) {
	return u.findOne(ctx, "subject_id", strings.TrimSpace(subjectID))
}

func (u *Users) GetByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	return u.findOne(ctx, "email", auth.NormalizeEmail(email))
}

func (u *Users) findOne(ctx context.Context, field, value string) (*auth.UserRecord, error) {
	if value == "" {
		return nil, auth.WithSource(auth.ErrNotFound, nil, map[string]any{field: value})
	}

	record := &auth.UserRecord{}
	if err := u.coll.FindOne(ctx, bson.D{{Key: field, Value: value}}).Decode(record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.WithSource(auth.ErrNotFound, err, map[string]any{field: value})
		}
		return nil, auth.Unreachable(err, "mongo.find_user")
	}
	return record, nil
}

func (u *Users) Insert(ctx context.Context, record *auth.UserRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Email = auth.NormalizeEmail(record.Email)
	record.CreatedAt = millis(record.CreatedAt)
	record.UpdatedAt = millis(record.UpdatedAt)

	if _, err := u.coll.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return auth.WithSource(auth.ErrEmailConflict, err, map[string]any{
				"subject_id": record.SubjectID,
				"email":      record.Email,
			})
		}
		return auth.Unreachable(err, "mongo.insert_user")
	}
	return nil
}

// UpdateSynced writes the provider owned fields when updated_at still
// equals expected.
func (u *Users) UpdateSynced(ctx context.Context, record *auth.UserRecord, expected time.Time) error {
	record.UpdatedAt = advance(record.UpdatedAt, expected)

	res, err := u.coll.UpdateOne(ctx,
		bson.D{
			{Key: "subject_id", Value: record.SubjectID},
			{Key: "updated_at", Value: millis(expected)},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "email", Value: auth.NormalizeEmail(record.Email)},
			{Key: "email_verified", Value: record.EmailVerified},
			{Key: "display_name", Value: record.DisplayName},
			{Key: "photo_url", Value: record.PhotoURL},
			{Key: "updated_at", Value: record.UpdatedAt},
		}}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return auth.WithSource(auth.ErrEmailConflict, err, map[string]any{"subject_id": record.SubjectID})
		}
		return auth.Unreachable(err, "mongo.update_synced")
	}
	if res.MatchedCount == 0 {
		return u.missOrStale(ctx, record.SubjectID)
	}
	return nil
}

func (u *Users) UpdateProfile(ctx context.Context, subjectID string, update auth.ProfileUpdate, at time.Time) (*auth.UserRecord, error) {
	record, err := u.GetBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	expected := record.UpdatedAt
	update.Apply(record)
	record.UpdatedAt = advance(at, expected)

	res, err := u.coll.UpdateOne(ctx,
		bson.D{
			{Key: "subject_id", Value: subjectID},
			{Key: "updated_at", Value: expected},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "display_name", Value: record.DisplayName},
			{Key: "profile", Value: record.Profile},
			{Key: "updated_at", Value: record.UpdatedAt},
		}}},
	)
	if err != nil {
		return nil, auth.Unreachable(err, "mongo.update_profile")
	}
	if res.MatchedCount == 0 {
		return nil, u.missOrStale(ctx, subjectID)
	}
	return record, nil
}

func (u *Users) TouchLogin(ctx context.Context, subjectID string, at time.Time) error {
	return u.set(ctx, subjectID, "mongo.touch_login", bson.D{
		{Key: "last_login_at", Value: millis(at)},
	})
}

func (u *Users) Deactivate(ctx context.Context, subjectID string, at time.Time) error {
	return u.set(ctx, subjectID, "mongo.deactivate", bson.D{
		{Key: "is_active", Value: false},
		{Key: "updated_at", Value: millis(at)},
	})
}

func (u *Users) Delete(ctx context.Context, subjectID string) error {
	res, err := u.coll.DeleteOne(ctx, bson.D{{Key: "subject_id", Value: subjectID}})
	if err != nil {
		return auth.Unreachable(err, "mongo.delete_user")
	}
	if res.DeletedCount == 0 {
		return auth.WithSource(auth.ErrNotFound, nil, map[string]any{"subject_id": subjectID})
	}
	return nil
}

func (u *Users) set(ctx context.Context, subjectID, op string, fields bson.D) error {
	res, err := u.coll.UpdateOne(ctx,
		bson.D{{Key: "subject_id", Value: subjectID}},
		bson.D{{Key: "$set", Value: fields}},
	)
	if err != nil {
		return auth.Unreachable(err, op)
	}
	if res.MatchedCount == 0 {
		return auth.WithSource(auth.ErrNotFound, nil, map[string]any{"subject_id": subjectID})
	}
	return nil
}

func (u *Users) missOrStale(ctx context.Context, subjectID string) error {
	if _, err := u.GetBySubject(ctx, subjectID); err != nil {
		return err
	}
	return auth.WithSource(auth.ErrStaleRecord, nil, map[string]any{"subject_id": subjectID})
}

func millis(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// advance returns next at millisecond precision, strictly after prev.
func advance(next, prev time.Time) time.Time {
	next = millis(next)
	prev = millis(prev)
	if !next.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return next
}
