package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/megabridge/withdrawal-prover/database/models"
	"github.com/megabridge/withdrawal-prover/types"
)

// SaveRootVersion upserts the version that last matched deployment.
func (db *Database) SaveRootVersion(ctx context.Context, deployment string, version types.RootVersion) error {
	filter := bson.D{{Key: "deployment", Value: deployment}}
	update := bson.D{{
		Key: "$set",
		Value: bson.D{
			{Key: "version", Value: version.String()},
			{Key: "discovered_at", Value: time.Now().UTC()},
		},
	}}

	_, err := db.collection(rootVersionsCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save root version: %w", err)
	}

	db.logger.Debug("Saved root version hint", "deployment", deployment, "version", version)
	return nil
}

// LoadRootVersion returns the stored hint for deployment. ok is false when
// none was saved yet.
func (db *Database) LoadRootVersion(ctx context.Context, deployment string) (version types.RootVersion, discoveredAt time.Time, ok bool, err error) {
	var record models.RootVersionRecord
	err = db.collection(rootVersionsCollection).FindOne(ctx, bson.D{{Key: "deployment", Value: deployment}}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, fmt.Errorf("failed to load root version: %w", err)
	}

	version, err = types.ParseRootVersion(record.Version)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("stored root version for %s: %w", deployment, err)
	}
	return version, record.DiscoveredAt, true, nil
}
