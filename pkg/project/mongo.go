package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoProjectsCollection = "projects"
	mongoSettingsCollection = "settings"
	mongoActiveDocID        = "active"
)

// MongoBackend stores projects in a MongoDB collection.
//
// Timestamps are stored as Unix nanoseconds: BSON dates only keep
// milliseconds, which would break strict recency ordering.
type MongoBackend struct {
	client   *mongo.Client
	projects *mongo.Collection
	settings *mongo.Collection
	owned    bool
}

type mongoVersion struct {
	Number      int    `bson:"number"`
	SourceText  string `bson:"source_text"`
	CommittedAt int64  `bson:"committed_at"`
}

type mongoProject struct {
	ID         string         `bson:"_id"`
	Name       string         `bson:"name"`
	SourceText string         `bson:"source_text"`
	CreatedAt  int64          `bson:"created_at"`
	UpdatedAt  int64          `bson:"updated_at"`
	Versions   []mongoVersion `bson:"versions"`
}

func toMongo(p *Project) mongoProject {
	doc := mongoProject{
		ID:         p.ID,
		Name:       p.Name,
		SourceText: p.SourceText,
		CreatedAt:  p.CreatedAt.UnixNano(),
		UpdatedAt:  p.UpdatedAt.UnixNano(),
		Versions:   make([]mongoVersion, len(p.Versions)),
	}
	for i, v := range p.Versions {
		doc.Versions[i] = mongoVersion{Number: v.Number, SourceText: v.SourceText, CommittedAt: v.CommittedAt.UnixNano()}
	}
	return doc
}

func (d mongoProject) project() *Project {
	p := &Project{
		ID:         d.ID,
		Name:       d.Name,
		SourceText: d.SourceText,
		CreatedAt:  time.Unix(0, d.CreatedAt).UTC(),
		UpdatedAt:  time.Unix(0, d.UpdatedAt).UTC(),
	}
	for _, v := range d.Versions {
		p.Versions = append(p.Versions, Version{
			Number:      v.Number,
			SourceText:  v.SourceText,
			CommittedAt: time.Unix(0, v.CommittedAt).UTC(),
		})
	}
	return p
}

// NewMongoBackend uses database on an existing client. Close does not
// disconnect it.
func NewMongoBackend(client *mongo.Client, database string) *MongoBackend {
	db := client.Database(database)
	return &MongoBackend{
		client:   client,
		projects: db.Collection(mongoProjectsCollection),
		settings: db.Collection(mongoSettingsCollection),
	}
}

// DialMongoBackend connects to uri and verifies the connection.
func DialMongoBackend(ctx context.Context, uri, database string) (*MongoBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	b := NewMongoBackend(client, database)
	b.owned = true
	return b, nil
}

func (m *MongoBackend) Get(ctx context.Context, id string) (*Project, error) {
	var doc mongoProject
	err := m.projects.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return doc.project(), nil
}

func (m *MongoBackend) Put(ctx context.Context, p *Project) error {
	_, err := m.projects.ReplaceOne(ctx, bson.M{"_id": p.ID}, toMongo(p), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (m *MongoBackend) Delete(ctx context.Context, id string) error {
	res, err := m.projects.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoBackend) List(ctx context.Context) ([]*Project, error) {
	cur, err := m.projects.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var docs []mongoProject
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	out := make([]*Project, len(docs))
	for i, d := range docs {
		out[i] = d.project()
	}
	return out, nil
}

func (m *MongoBackend) Active(ctx context.Context) (string, error) {
	var doc struct {
		Value string `bson:"value"`
	}
	err := m.settings.FindOne(ctx, bson.M{"_id": mongoActiveDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get active project: %w", err)
	}
	return doc.Value, nil
}

func (m *MongoBackend) SetActive(ctx context.Context, id string) error {
	var err error
	if id == "" {
		_, err = m.settings.DeleteOne(ctx, bson.M{"_id": mongoActiveDocID})
	} else {
		_, err = m.settings.UpdateOne(ctx,
			bson.M{"_id": mongoActiveDocID},
			bson.M{"$set": bson.M{"value": id}},
			options.Update().SetUpsert(true))
	}
	if err != nil {
		return fmt.Errorf("set active project: %w", err)
	}
	return nil
}

// Close disconnects the client if this backend dialed it.
func (m *MongoBackend) Close() error {
	if !m.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

var _ Backend = (*MongoBackend)(nil)
