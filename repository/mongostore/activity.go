package mongostore

import (
	"context"

	auth "github.com/goliatone/go-growth-auth"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Activity is the Mongo backed auth.ActivityLog.
type Activity struct {
	coll *mongo.Collection
}

var _ auth.ActivityLog = (*Activity)(nil)

// NewActivity wraps the collection.
func NewActivity(coll *mongo.Collection) *Activity {
	return &Activity{coll: coll}
}

func (a *Activity) Append(ctx context.Context, entry *auth.ActivityLogEntry) error {
	if entry == nil {
		return nil
	}
	entry.OccurredAt = millis(entry.OccurredAt)
	if _, err := a.coll.InsertOne(ctx, entry); err != nil {
		return auth.Unreachable(err, "mongo.append_activity")
	}
	return nil
}

// ListBySubject returns entries oldest first. Ids are time ordered so they
// break ties inside one millisecond.
func (a *Activity) ListBySubject(ctx context.Context, subjectID string, limit int) ([]*auth.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = auth.DefaultActivityLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := a.coll.Find(ctx, bson.D{{Key: "subject_id", Value: subjectID}}, opts)
	if err != nil {
		return nil, auth.Unreachable(err, "mongo.list_activity")
	}

	var entries []*auth.ActivityLogEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, auth.Unreachable(err, "mongo.list_activity")
	}
	return entries, nil
}
