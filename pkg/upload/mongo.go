package upload

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/evidence"
	"github.com/matzehuels/evidencepack/pkg/pack"
)

const mongoConnectTimeout = 10 * time.Second

// collection is the subset of *mongo.Collection used by Mongo.
type collection interface {
	UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// IndexDocument is the document stored per repository revision. Field
// names follow the pack's JSON files.
type IndexDocument struct {
	Repo      string           `json:"repo"`
	Commit    string           `json:"commit_sha"`
	RunID     string           `json:"run_id"`
	BuildID   string           `json:"build_id"`
	BuildTime string           `json:"build_time"`
	Digest    string           `json:"digest"`
	Files     []pack.Entry     `json:"files"`
	Summary   evidence.Summary `json:"summary"`
}

// Mongo indexes a pack as one document keyed by repository and commit.
// Only the summary and the manifest are stored; the files stay wherever
// the pack itself lives.
type Mongo struct {
	Database   string
	Collection string
	Logger     *log.Logger

	uri  string
	dial func(ctx context.Context) (collection, func(context.Context) error, error)
}

// NewMongo creates a Mongo uploader for the given connection string.
func NewMongo(cfg config.MongoConfig, uri string, logger *log.Logger) *Mongo {
	m := &Mongo{Database: cfg.Database, Collection: cfg.Collection, Logger: logger, uri: uri}
	m.dial = m.connect
	return m
}

// Name implements Uploader.
func (m *Mongo) Name() string { return config.UploadMongo }

// Upload implements Uploader.
func (m *Mongo) Upload(ctx context.Context, p Pack) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	doc, err := indexDocument(p)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpload, err, "encode index document")
	}

	coll, closeFn, err := m.dial(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpload, err, "connect to mongo")
	}
	defer closeFn(context.WithoutCancel(ctx))

	id := p.Repo + "@" + p.Commit
	_, err = coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: doc}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpload, err, "upsert %s", id)
	}

	res := &Result{
		Target:       config.UploadMongo,
		PublishedURL: "mongodb:" + m.Database + "/" + m.Collection + "/" + id,
		Files:        len(p.Manifest.Entries),
	}
	for _, e := range p.Manifest.Entries {
		res.Bytes += e.Size
	}
	m.logger().Info("indexed pack", "collection", m.Database+"."+m.Collection, "id", id)
	return res, nil
}

// indexDocument encodes p through its JSON form so stored field names
// match the pack files.
func indexDocument(p Pack) (bson.D, error) {
	data, err := json.Marshal(IndexDocument{
		Repo:      p.Repo,
		Commit:    p.Commit,
		RunID:     p.Build.RunID,
		BuildID:   p.Build.BuildID,
		BuildTime: p.Build.BuildTime,
		Digest:    p.Manifest.Digest,
		Files:     p.Manifest.Entries,
		Summary:   p.Summary,
	})
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *Mongo) connect(ctx context.Context) (collection, func(context.Context) error, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.uri))
	if err != nil {
		return nil, nil, m.redact(err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, m.redact(err)
	}
	return client.Database(m.Database).Collection(m.Collection), client.Disconnect, nil
}

// redact replaces driver errors that echo the connection string.
func (m *Mongo) redact(err error) error {
	if m.uri != "" && strings.Contains(err.Error(), m.uri) {
		return errors.New(errors.ErrCodeNetwork, "mongo unreachable or rejected credentials")
	}
	return err
}

func (m *Mongo) logger() *log.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return log.Default()
}
