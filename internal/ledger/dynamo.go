package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// latestSessionKey is the partition holding per-identity cooldown gate
// items. It never appears in query results.
const latestSessionKey = "_latest"

// DynamoClient is the subset of the DynamoDB API the ledger store uses.
type DynamoClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore persists attendance in a DynamoDB table keyed by
// (session_id HASH, face_id RANGE). Dedup rides on DynamoDB conditional
// writes: a failed condition means a concurrent or earlier event already
// claimed the slot.
type DynamoStore struct {
	client DynamoClient
	table  string
}

// NewDynamoStore creates a DynamoDB-backed ledger store.
func NewDynamoStore(client DynamoClient, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// InsertUnique writes the record with a condition that no record exists for
// the (session key, identity) pair yet.
func (s *DynamoStore) InsertUnique(ctx context.Context, rec Record) (bool, error) {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                encodeAttendanceItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(face_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("conditional put attendance: %w", err)
	}
	return true, nil
}

// InsertAfter claims the identity's gate item in the _latest partition
// (absent, or at or before cutoff) and appends the record in one
// transaction. A rejected claim means suppression; any other failure
// cancels the whole transaction, so the gate never advances without its
// record.
func (s *DynamoStore) InsertAfter(ctx context.Context, rec Record, cutoff time.Time) (bool, error) {
	ts := rec.Timestamp.UTC().Format(recordKeyLayout)
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName: aws.String(s.table),
					Item: map[string]types.AttributeValue{
						"session_id": &types.AttributeValueMemberS{Value: latestSessionKey},
						"face_id":    &types.AttributeValueMemberS{Value: rec.Identity},
						"timestamp":  &types.AttributeValueMemberS{Value: ts},
					},
					ConditionExpression: aws.String("attribute_not_exists(#ts) OR #ts <= :cutoff"),
					ExpressionAttributeNames: map[string]string{
						"#ts": "timestamp",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						// Fixed-width UTC timestamps compare lexicographically
						// in time order.
						":cutoff": &types.AttributeValueMemberS{Value: cutoff.UTC().Format(recordKeyLayout)},
					},
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(s.table),
					Item:      encodeAttendanceItem(rec),
				},
			},
		},
	})
	if err != nil {
		var tc *types.TransactionCanceledException
		if errors.As(err, &tc) {
			for _, reason := range tc.CancellationReasons {
				if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
					return false, nil
				}
			}
		}
		return false, fmt.Errorf("put attendance transaction: %w", err)
	}
	return true, nil
}

// Scan pages through the whole table, skipping gate items, and filters
// client-side the way the original full-table scan did.
func (s *DynamoStore) Scan(ctx context.Context, f Filter) ([]Record, error) {
	var out []Record

	var startKey map[string]types.AttributeValue
	for {
		resp, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan attendance table: %w", err)
		}

		for _, item := range resp.Items {
			rec, ok, err := decodeAttendanceItem(item)
			if err != nil {
				return nil, err
			}
			if ok && f.Matches(rec) {
				out = append(out, rec)
			}
		}

		if resp.LastEvaluatedKey == nil {
			break
		}
		startKey = resp.LastEvaluatedKey
	}

	return out, nil
}

func encodeAttendanceItem(rec Record) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: rec.SessionKey},
		"face_id":    &types.AttributeValueMemberS{Value: rec.Identity},
		"timestamp":  &types.AttributeValueMemberS{Value: rec.Timestamp.UTC().Format(time.RFC3339Nano)},
		"source":     &types.AttributeValueMemberS{Value: rec.Source},
	}
}

func decodeAttendanceItem(item map[string]types.AttributeValue) (Record, bool, error) {
	sessionAttr, ok := item["session_id"].(*types.AttributeValueMemberS)
	if !ok || sessionAttr.Value == latestSessionKey {
		return Record{}, false, nil
	}
	idAttr, ok := item["face_id"].(*types.AttributeValueMemberS)
	if !ok {
		return Record{}, false, nil
	}

	rec := Record{SessionKey: sessionAttr.Value, Identity: idAttr.Value}
	if tsAttr, ok := item["timestamp"].(*types.AttributeValueMemberS); ok {
		ts, err := time.Parse(time.RFC3339Nano, tsAttr.Value)
		if err != nil {
			return Record{}, false, fmt.Errorf("attendance item for %q: parse timestamp: %w", idAttr.Value, err)
		}
		rec.Timestamp = ts
	}
	if srcAttr, ok := item["source"].(*types.AttributeValueMemberS); ok {
		rec.Source = srcAttr.Value
	}
	return rec, true, nil
}
