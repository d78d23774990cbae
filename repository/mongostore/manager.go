// Package mongostore implements the user directory and the activity log on
// MongoDB.
package mongostore

import (
	"context"
	"errors"
	"log"
	"time"

	auth "github.com/goliatone/go-growth-auth"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	UsersCollection    = "user_records"
	ActivityCollection = "activity_log"
)

// Connect opens a client and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, auth.Unreachable(err, "mongo.connect")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, auth.Unreachable(err, "mongo.ping")
	}
	return client, nil
}

// Manager exposes the Mongo repositories of one database.
type Manager struct {
	db       *mongo.Database
	users    *Users
	activity *Activity
}

// NewManager wires repositories around an injected database. The caller
// owns the client and disconnects it on shutdown.
func NewManager(db *mongo.Database) *Manager {
	return &Manager{
		db:       db,
		users:    NewUsers(db.Collection(UsersCollection)),
		activity: NewActivity(db.Collection(ActivityCollection)),
	}
}

func (m *Manager) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.activity == nil {
		return errors.New("repository activity should be initialized")
	}

	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *Manager) Users() *Users {
	return m.users
}

func (m *Manager) Activity() *Activity {
	return m.activity
}

// EnsureSchema creates the unique and listing indexes.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	_, err := m.db.Collection(UsersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "subject_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("user_records_subject_id_uq"),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("user_records_email_uq"),
		},
	})
	if err != nil {
		return auth.Unreachable(err, "mongo.create_indexes")
	}

	_, err = m.db.Collection(ActivityCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "subject_id", Value: 1}, {Key: "occurred_at", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("activity_log_subject_occurred_idx"),
	})
	if err != nil {
		return auth.Unreachable(err, "mongo.create_indexes")
	}
	return nil
}
