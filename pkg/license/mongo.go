package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	defaultBusinessesCollection = "businesses"
	defaultMongoOpTimeout       = 5 * time.Second
)

// MongoOptions configures the MongoDB store.
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoStore implements Store on a MongoDB collection holding one document
// per business with its licenses embedded.
type MongoStore struct {
	client     *mongo.Client
	businesses *mongo.Collection
	timeout    time.Duration
}

// OpenMongo connects to MongoDB and ensures the collection indexes exist.
func OpenMongo(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultBusinessesCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultMongoOpTimeout
	}

	client, err := mongo.Connect(options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	s := &MongoStore{
		client:     client,
		businesses: client.Database(opts.Database).Collection(collection),
		timeout:    timeout,
	}

	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.businesses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create owner index: %w", err)
	}
	return nil
}

// FindByOwner loads the business owned by ownerID.
func (s *MongoStore) FindByOwner(ctx context.Context, ownerID string) (*Business, error) {
	return s.findOne(ctx, bson.M{"owner_id": ownerID})
}

// FindByID loads a business by id.
func (s *MongoStore) FindByID(ctx context.Context, businessID string) (*Business, error) {
	return s.findOne(ctx, bson.M{"_id": businessID})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*Business, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var b Business
	if err := s.businesses.FindOne(ctx, filter).Decode(&b); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("find business: %w", err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	for i := range b.RequiredLicenses {
		if d := b.RequiredLicenses[i].ApplicationDate; d != nil {
			t := d.UTC()
			b.RequiredLicenses[i].ApplicationDate = &t
		}
	}
	return &b, nil
}

// UpdateLicenseStatus updates one embedded license entry with the positional
// operator, leaving sibling entries untouched.
func (s *MongoStore) UpdateLicenseStatus(ctx context.Context, businessID, licenseType string, status Status, appliedAt *time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("invalid license status %q", status)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	set := bson.M{"required_licenses.$.status": string(status)}
	if appliedAt != nil {
		set["required_licenses.$.application_date"] = appliedAt.UTC()
	}
	filter := bson.M{
		"_id":                            businessID,
		"required_licenses.license_type": licenseType,
	}

	res, err := s.businesses.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update license: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := s.businesses.CountDocuments(ctx, bson.M{"_id": businessID})
	if err != nil {
		return fmt.Errorf("check business: %w", err)
	}
	if n == 0 {
		return ErrBusinessNotFound
	}
	return ErrLicenseNotFound
}

// SaveBusiness upserts the whole business document.
func (s *MongoStore) SaveBusiness(ctx context.Context, b *Business) error {
	if err := validateBusiness(b); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.businesses.ReplaceOne(ctx, bson.M{"_id": b.ID}, b, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save business: %w", err)
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}
