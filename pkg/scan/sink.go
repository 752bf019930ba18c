package scan

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/depscan/pkg/depgraph"
	"github.com/matzehuels/depscan/pkg/errors"
)

// Sink stores encoded artifacts.
type Sink interface {
	// Save stores data, the encoding of d, and returns the name it was
	// stored under.
	Save(ctx context.Context, d *depgraph.Dump, data []byte) (string, error)
}

// FileSink writes artifacts as <Dir>/<root>@<version>.json.
type FileSink struct {
	Dir string
}

// Save writes data to Dir, replacing an existing file of the same name.
func (s FileSink) Save(ctx context.Context, d *depgraph.Dump, data []byte) (string, error) {
	name := d.FileName()
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", path)
	}
	return name, nil
}

// DefaultMongoCollection holds artifacts in MongoSink.
const DefaultMongoCollection = "dep_info"

// MongoConfig configures a MongoSink.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string        // default: dep_info
	Timeout    time.Duration // connect and ping budget (default: 10s)
}

// MongoSink upserts artifacts into a MongoDB collection, one document per
// artifact file name.
type MongoSink struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoSink connects to MongoDB and verifies the connection.
func NewMongoSink(ctx context.Context, cfg MongoConfig) (*MongoSink, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "mongo sink needs a URI and a database")
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultMongoCollection
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "ping mongo")
	}
	return &MongoSink{client: client, coll: client.Database(cfg.Database).Collection(cfg.Collection)}, nil
}

// Save upserts the artifact under its file name.
func (s *MongoSink) Save(ctx context.Context, d *depgraph.Dump, data []byte) (string, error) {
	var body bson.M
	if err := bson.UnmarshalExtJSON(data, false, &body); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "convert %s", d.FileName())
	}
	name := d.FileName()
	doc := bson.M{
		"_id":      name,
		"root_pkg": d.RootPackage,
		"version":  d.RootVersion(),
		"dep_info": body["dep_info"],
		"saved_at": time.Now().UTC(),
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": name}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeNetwork, err, "store %s", name)
	}
	return name, nil
}

// Close disconnects from MongoDB.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
