package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/megabridge/withdrawal-prover/database/models"
	"github.com/megabridge/withdrawal-prover/types"
)

// RecordAttempt upserts the proof record of txHash with the outcome of one
// pipeline run.
func (db *Database) RecordAttempt(ctx context.Context, txHash common.Hash, result *types.ProveResult, runErr error) error {
	record := newProofRecord(txHash, result, runErr, time.Now())
	filter := bson.D{{Key: "tx_hash", Value: record.TxHash}}

	_, err := db.collection(proofsCollection).UpdateOne(ctx, filter, attemptUpdate(record), options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to record proof attempt: %w", err)
	}
	return nil
}

func newProofRecord(txHash common.Hash, result *types.ProveResult, runErr error, now time.Time) models.ProofRecord {
	record := models.ProofRecord{
		TxHash:    txHash.Hex(),
		Status:    string(types.Failed),
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	}
	if result != nil {
		record.Status = string(result.Status)
		if w := result.Withdrawal; w != nil {
			record.WithdrawalHash = w.WithdrawalHash.Hex()
			record.L2BlockNumber = w.L2BlockNumber
		}
		if g := result.Game; g != nil {
			index := g.Index
			record.GameIndex = &index
			record.GameProxy = g.Proxy.Hex()
			record.GameL2Block = g.L2BlockNumber
		}
		if result.RootVersion != nil {
			record.RootVersion = result.RootVersion.String()
		}
		if result.L1TxHash != nil {
			record.L1TxHash = result.L1TxHash.Hex()
		}
	}
	if runErr != nil {
		record.Error = runErr.Error()
		record.Retryable = types.IsTransient(runErr)
		var stageErr *types.StageError
		if errors.As(runErr, &stageErr) {
			record.Stage = string(stageErr.Stage)
		}
	}
	return record
}

// attemptUpdate sets every field the run produced, clears stale error fields
// on success and counts the attempt.
func attemptUpdate(record models.ProofRecord) bson.D {
	set := bson.D{
		{Key: "status", Value: record.Status},
		{Key: "retryable", Value: record.Retryable},
		{Key: "updated_at", Value: record.UpdatedAt},
	}
	unset := bson.D{}

	optional := []struct {
		key   string
		value interface{}
		empty bool
	}{
		{"withdrawal_hash", record.WithdrawalHash, record.WithdrawalHash == ""},
		{"l2_block_number", record.L2BlockNumber, record.L2BlockNumber == 0},
		{"game_index", record.GameIndex, record.GameIndex == nil},
		{"game_proxy", record.GameProxy, record.GameProxy == ""},
		{"game_l2_block", record.GameL2Block, record.GameL2Block == 0},
		{"root_version", record.RootVersion, record.RootVersion == ""},
		{"l1_tx_hash", record.L1TxHash, record.L1TxHash == ""},
	}
	for _, f := range optional {
		if !f.empty {
			set = append(set, bson.E{Key: f.key, Value: f.value})
		}
	}

	if record.Error != "" {
		set = append(set, bson.E{Key: "error", Value: record.Error})
		if record.Stage != "" {
			set = append(set, bson.E{Key: "stage", Value: record.Stage})
		}
	} else {
		unset = append(unset, bson.E{Key: "error", Value: ""}, bson.E{Key: "stage", Value: ""})
	}

	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: record.CreatedAt}}},
		{Key: "$inc", Value: bson.D{{Key: "attempts", Value: 1}}},
	}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	return update
}

// GetProofRecordByTxHash returns types.ErrNotFound when txHash was never
// attempted.
func (db *Database) GetProofRecordByTxHash(ctx context.Context, txHash common.Hash) (models.ProofRecord, error) {
	var record models.ProofRecord
	err := db.collection(proofsCollection).FindOne(ctx, bson.D{{Key: "tx_hash", Value: txHash.Hex()}}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ProofRecord{}, fmt.Errorf("proof record for %s: %w", txHash.Hex(), types.ErrNotFound)
		}
		return models.ProofRecord{}, fmt.Errorf("failed to get proof record: %w", err)
	}
	return record, nil
}

func buildFilter(f models.Filter) bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.TxHash != "" {
		filter["tx_hash"] = f.TxHash
	}
	if f.WithdrawalHash != "" {
		filter["withdrawal_hash"] = f.WithdrawalHash
	}
	return filter
}

// normalizePage clamps page to at least 1 and pageSize to 1..maxPageSize.
func normalizePage(page, pageSize int64) (int64, int64) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// GetProofRecords lists proof records matching filter, most recently
// updated first.
func (db *Database) GetProofRecords(ctx context.Context, filter models.Filter, page, pageSize int64) (*models.PaginatedResult, error) {
	page, pageSize = normalizePage(page, pageSize)
	collection := db.collection(proofsCollection)
	mongoFilter := buildFilter(filter)

	total, err := collection.CountDocuments(ctx, mongoFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to count proof records: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetSkip((page - 1) * pageSize).
		SetLimit(pageSize)

	cursor, err := collection.Find(ctx, mongoFilter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find proof records: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.ProofRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode proof records: %w", err)
	}

	return &models.PaginatedResult{
		Items:      records,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// pendingFilter matches withdrawals still waiting for a covering game and
// failures a later run may get past.
func pendingFilter() bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "status", Value: string(types.NoCoveringGame)}},
		bson.D{{Key: "status", Value: string(types.Failed)}, {Key: "retryable", Value: true}},
	}}}
}

// GetPendingProofRecords returns every record matching pendingFilter, oldest
// update first.
func (db *Database) GetPendingProofRecords(ctx context.Context) ([]models.ProofRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetBatchSize(1000)

	cursor, err := db.collection(proofsCollection).Find(ctx, pendingFilter(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending proof records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.ProofRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode proof records: %w", err)
	}
	return records, nil
}
