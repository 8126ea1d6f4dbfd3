package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoBatchSize is the DynamoDB BatchWriteItem limit.
const dynamoBatchSize = 25

// DynamoClient is the subset of the DynamoDB API the registry store uses.
// Narrowed to an interface so tests can fake it.
type DynamoClient interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore persists embeddings in a DynamoDB table keyed by face_id.
// Each item carries the vector as a number list plus an updated_at timestamp.
type DynamoStore struct {
	client DynamoClient
	table  string
	now    func() time.Time
}

// NewDynamoStore creates a DynamoDB-backed store over the given table.
func NewDynamoStore(client DynamoClient, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table, now: time.Now}
}

// Load scans the whole table into memory. A missing or empty table maps
// to ErrNotFound, rebuilds never leave the registry empty so no rows
// means it was never built.
func (s *DynamoStore) Load(ctx context.Context) (map[string][]float32, error) {
	embeddings := make(map[string][]float32)

	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			var rnf *types.ResourceNotFoundException
			if errors.As(err, &rnf) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("scan faces table: %w", err)
		}

		for _, item := range out.Items {
			id, vec, err := decodeFaceItem(item)
			if err != nil {
				return nil, err
			}
			if id == "" || vec == nil {
				// Items without an embedding attribute are skipped, the
				// table may hold partially provisioned entries.
				continue
			}
			embeddings[id] = vec
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	if len(embeddings) == 0 {
		return nil, ErrNotFound
	}
	return embeddings, nil
}

// SaveAll replaces the table contents: stale identities are deleted and the
// new mapping is written in batches.
func (s *DynamoStore) SaveAll(ctx context.Context, embeddings map[string][]float32) error {
	existing, err := s.Load(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	var writes []types.WriteRequest
	for id := range existing {
		if _, keep := embeddings[id]; keep {
			continue
		}
		writes = append(writes, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"face_id": &types.AttributeValueMemberS{Value: id},
				},
			},
		})
	}

	updatedAt := s.now().UTC().Format(time.RFC3339)
	for id, vec := range embeddings {
		writes = append(writes, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: encodeFaceItem(id, vec, updatedAt)},
		})
	}

	for start := 0; start < len(writes); start += dynamoBatchSize {
		end := min(start+dynamoBatchSize, len(writes))
		batch := writes[start:end]
		for len(batch) > 0 {
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{s.table: batch},
			})
			if err != nil {
				return fmt.Errorf("batch write faces: %w", err)
			}
			batch = out.UnprocessedItems[s.table]
		}
	}
	return nil
}

// Upsert writes a single face item, replacing any prior vector for the
// identity.
func (s *DynamoStore) Upsert(ctx context.Context, identity string, vector []float32) error {
	updatedAt := s.now().UTC().Format(time.RFC3339)
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      encodeFaceItem(identity, vector, updatedAt),
	})
	if err != nil {
		return fmt.Errorf("put face item: %w", err)
	}
	return nil
}

func encodeFaceItem(identity string, vector []float32, updatedAt string) map[string]types.AttributeValue {
	values := make([]types.AttributeValue, len(vector))
	for i, v := range vector {
		values[i] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(float64(v), 'g', -1, 32)}
	}
	return map[string]types.AttributeValue{
		"face_id":    &types.AttributeValueMemberS{Value: identity},
		"embedding":  &types.AttributeValueMemberL{Value: values},
		"updated_at": &types.AttributeValueMemberS{Value: updatedAt},
	}
}

func decodeFaceItem(item map[string]types.AttributeValue) (string, []float32, error) {
	idAttr, ok := item["face_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", nil, nil
	}
	listAttr, ok := item["embedding"].(*types.AttributeValueMemberL)
	if !ok {
		return idAttr.Value, nil, nil
	}

	vec := make([]float32, len(listAttr.Value))
	for i, av := range listAttr.Value {
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return "", nil, fmt.Errorf("face %q: embedding element %d is not a number", idAttr.Value, i)
		}
		f, err := strconv.ParseFloat(n.Value, 32)
		if err != nil {
			return "", nil, fmt.Errorf("face %q: parse embedding element %d: %w", idAttr.Value, i, err)
		}
		vec[i] = float32(f)
	}
	return idAttr.Value, vec, nil
}
