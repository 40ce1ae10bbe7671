package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"devicegateway/internal/core/model"
)

const queryTimeout = 5 * time.Second

// FrameRecord is one decoded frame as the directory sees it.
type FrameRecord struct {
	IMEI       string
	Header     string
	RemoteAddr string
	At         time.Time
}

type DeviceRepository interface {
	// RecordFrame creates the device on first sight and bumps its counters.
	RecordFrame(ctx context.Context, rec FrameRecord) error
	// RecordSubmission stores the latest out-of-band payload for imei.
	RecordSubmission(ctx context.Context, imei, data string, at time.Time) error
	// FindByIMEI returns nil, nil when the device is unknown.
	FindByIMEI(ctx context.Context, imei string) (*model.Device, error)
	FindAll(ctx context.Context) ([]*model.Device, error)
}

type MongoDeviceRepository struct {
	collection *mongo.Collection
}

func NewMongoDeviceRepository(db *mongo.Database) *MongoDeviceRepository {
	return &MongoDeviceRepository{
		collection: db.Collection("devices"),
	}
}

// EnsureIndexes creates the unique IMEI index.
func (r *MongoDeviceRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "imei", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoDeviceRepository) RecordFrame(ctx context.Context, rec FrameRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	update := bson.M{
		"$setOnInsert": bson.M{"firstseen": rec.At},
		"$set": bson.M{
			"source":     model.SourceTCP,
			"lastseen":   rec.At,
			"lastheader": rec.Header,
			"remoteaddr": rec.RemoteAddr,
		},
		"$inc": bson.M{"framecount": 1},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"imei": rec.IMEI}, update, options.Update().SetUpsert(true))
	return err
}

func (r *MongoDeviceRepository) RecordSubmission(ctx context.Context, imei, data string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	update := bson.M{
		"$setOnInsert": bson.M{"firstseen": at, "framecount": 0},
		"$set": bson.M{
			"source":   model.SourceAPI,
			"lastseen": at,
			"lastdata": data,
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"imei": imei}, update, options.Update().SetUpsert(true))
	return err
}

func (r *MongoDeviceRepository) FindByIMEI(ctx context.Context, imei string) (*model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var device model.Device
	err := r.collection.FindOne(ctx, bson.M{"imei": imei}).Decode(&device)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *MongoDeviceRepository) FindAll(ctx context.Context) ([]*model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.M{"lastseen": -1})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	devices := []*model.Device{}
	if err = cursor.All(ctx, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}
