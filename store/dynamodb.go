package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/taskcluster/artifactcore/artifact"
)

// DynamoDBArtifactStore is the production ArtifactStore backend: partition
// key taskId#runId, sort key name, with a conditional PutItem standing in
// for "insert-or-conflict" rather than a read-then-write race.
type DynamoDBArtifactStore struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoDBArtifactStore wraps an already-configured dynamodb.Client.
func NewDynamoDBArtifactStore(client *dynamodb.Client, table string) *DynamoDBArtifactStore {
	return &DynamoDBArtifactStore{client: client, table: table}
}

// item is the flattened DynamoDB row shape. Details are stored as a small
// tagged sub-map so Load/Query can reconstruct the right Details variant
// without a second lookup.
type item struct {
	PK            string `dynamodbav:"pk"` // taskId#runId
	Name          string `dynamodbav:"name"`
	TaskID        string `dynamodbav:"taskId"`
	RunID         int64  `dynamodbav:"runId"`
	StorageType   string `dynamodbav:"storageType"`
	ContentType   string `dynamodbav:"contentType"`
	ExpiresUnixMS int64  `dynamodbav:"expires"`

	// Variant fields; only the ones matching StorageType are populated.
	Bucket    string `dynamodbav:"bucket,omitempty"`
	Prefix    string `dynamodbav:"prefix,omitempty"`
	Container string `dynamodbav:"container,omitempty"`
	Path      string `dynamodbav:"path,omitempty"`
	URL       string `dynamodbav:"url,omitempty"`
	Message   string `dynamodbav:"message,omitempty"`
	Reason    string `dynamodbav:"reason,omitempty"`
}

func partitionKey(taskID string, runID int64) string {
	return taskID + "#" + strconv.FormatInt(runID, 10)
}

func toItem(a *artifact.Artifact) (*item, error) {
	it := &item{
		PK:            partitionKey(a.TaskID, a.RunID),
		Name:          a.Name,
		TaskID:        a.TaskID,
		RunID:         a.RunID,
		StorageType:   string(a.StorageType),
		ContentType:   a.ContentType,
		ExpiresUnixMS: a.Expires.UnixMilli(),
	}
	switch d := a.Details.(type) {
	case artifact.S3Details:
		it.Bucket, it.Prefix = d.Bucket, d.Prefix
	case artifact.AzureDetails:
		it.Container, it.Path = d.Container, d.Path
	case artifact.ReferenceDetails:
		it.URL = d.URL
	case artifact.ErrorDetails:
		it.Message, it.Reason = d.Message, d.Reason
	default:
		return nil, fmt.Errorf("dynamodb artifact store: unknown storage type %T", d)
	}
	return it, nil
}

func fromItem(it *item) (*artifact.Artifact, error) {
	a := &artifact.Artifact{
		TaskID:      it.TaskID,
		RunID:       it.RunID,
		Name:        it.Name,
		StorageType: artifact.StorageType(it.StorageType),
		ContentType: it.ContentType,
		Expires:     msToTime(it.ExpiresUnixMS),
	}
	switch a.StorageType {
	case artifact.S3:
		a.Details = artifact.S3Details{Bucket: it.Bucket, Prefix: it.Prefix}
	case artifact.Azure:
		a.Details = artifact.AzureDetails{Container: it.Container, Path: it.Path}
	case artifact.Reference:
		a.Details = artifact.ReferenceDetails{URL: it.URL}
	case artifact.Error:
		a.Details = artifact.ErrorDetails{Message: it.Message, Reason: it.Reason}
	default:
		return nil, fmt.Errorf("dynamodb artifact store: unknown stored storage type %q", it.StorageType)
	}
	return a, nil
}

func (s *DynamoDBArtifactStore) Create(ctx context.Context, a *artifact.Artifact) error {
	it, err := toItem(a)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return fmt.Errorf("dynamodb artifact store: marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.table,
		Item:                av,
		ConditionExpression: awsString("attribute_not_exists(pk) AND attribute_not_exists(#n)"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
	})
	if err == nil {
		return nil
	}

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		existing, loadErr := s.Load(ctx, a.Key())
		if loadErr != nil {
			return fmt.Errorf("dynamodb artifact store: load after conflict: %w", loadErr)
		}
		return &ConflictError{Existing: existing}
	}
	return fmt.Errorf("dynamodb artifact store: put item: %w", err)
}

func (s *DynamoDBArtifactStore) Load(ctx context.Context, key artifact.Key) (*artifact.Artifact, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.table,
		Key: map[string]types.AttributeValue{
			"pk":   &types.AttributeValueMemberS{Value: partitionKey(key.TaskID, key.RunID)},
			"name": &types.AttributeValueMemberS{Value: key.Name},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb artifact store: get item: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("dynamodb artifact store: unmarshal item: %w", err)
	}
	return fromItem(&it)
}

// Modify performs a non-transactional read-modify-write: load, mutate, then
// write back unconditionally. Safe for this core's only two callers
// (idempotency reconciliation and extending expires), both of which mutate
// a strict subset of fields that are themselves monotonic or idempotent, so
// a lost update merely repeats work rather than corrupting state.
func (s *DynamoDBArtifactStore) Modify(ctx context.Context, key artifact.Key, mutate func(*artifact.Artifact) error) (*artifact.Artifact, error) {
	current, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := mutate(current); err != nil {
		return nil, err
	}
	it, err := toItem(current)
	if err != nil {
		return nil, err
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return nil, fmt.Errorf("dynamodb artifact store: marshal item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &s.table, Item: av}); err != nil {
		return nil, fmt.Errorf("dynamodb artifact store: put item: %w", err)
	}
	return current, nil
}

type cursor struct {
	Name string `json:"name"`
}

func (s *DynamoDBArtifactStore) Query(ctx context.Context, taskID string, runID int64, opts QueryOptions) (QueryResult, error) {
	limit := int32(opts.Limit)
	if limit <= 0 {
		limit = 1000
	}

	exprValues := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: partitionKey(taskID, runID)},
	}
	input := &dynamodb.QueryInput{
		TableName:              &s.table,
		KeyConditionExpression: awsString("pk = :pk"),
		Limit:                  &limit,
	}

	if !opts.Before.IsZero() {
		input.FilterExpression = awsString("expires <= :before")
		exprValues[":before"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(opts.Before.UnixMilli(), 10)}
	}
	input.ExpressionAttributeValues = exprValues

	if len(opts.Continuation) > 0 {
		c, err := decodeDynamoCursor(opts.Continuation)
		if err != nil {
			return QueryResult{}, err
		}
		input.ExclusiveStartKey = map[string]types.AttributeValue{
			"pk":   &types.AttributeValueMemberS{Value: partitionKey(taskID, runID)},
			"name": &types.AttributeValueMemberS{Value: c.Name},
		}
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return QueryResult{}, fmt.Errorf("dynamodb artifact store: query: %w", err)
	}

	result := QueryResult{}
	for _, rawItem := range out.Items {
		var it item
		if err := attributevalue.UnmarshalMap(rawItem, &it); err != nil {
			return QueryResult{}, fmt.Errorf("dynamodb artifact store: unmarshal item: %w", err)
		}
		a, err := fromItem(&it)
		if err != nil {
			return QueryResult{}, err
		}
		result.Entries = append(result.Entries, a)
	}
	if out.LastEvaluatedKey != nil {
		nameAV, ok := out.LastEvaluatedKey["name"].(*types.AttributeValueMemberS)
		if ok {
			result.Continuation = encodeDynamoCursor(cursor{Name: nameAV.Value})
		}
	}
	return result, nil
}

func encodeDynamoCursor(c cursor) []byte {
	raw, _ := json.Marshal(c)
	return []byte(base64.RawURLEncoding.EncodeToString(raw))
}

func decodeDynamoCursor(token []byte) (cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(token))
	if err != nil {
		return cursor{}, fmt.Errorf("invalid continuation token: %w", err)
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return cursor{}, fmt.Errorf("invalid continuation token: %w", err)
	}
	return c, nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }

var _ ArtifactStore = (*DynamoDBArtifactStore)(nil)
