package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// record is the DynamoDB item layout. State holds the JSON document; the
// other attributes exist for console queries and TTL expiry.
type record struct {
	SessionID string `dynamodbav:"sessionId"`
	Step      string `dynamodbav:"step"`
	Emergency bool   `dynamodbav:"emergency"`
	State     string `dynamodbav:"state"`
	UpdatedAt string `dynamodbav:"updatedAt"`
	ExpiresAt int64  `dynamodbav:"expiresAt,omitempty"`
}

// DynamoStore persists sessions in a DynamoDB table keyed by sessionId.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

func NewDynamoStore(client dynamoAPI, tableName string, ttl time.Duration, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("session: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("session: table name cannot be empty")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{client: client, tableName: tableName, ttl: ttl, logger: logger, now: time.Now}
}

func (s *DynamoStore) Load(ctx context.Context, sessionID string) (triage.State, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return triage.State{}, fmt.Errorf("session: failed to fetch %s: %w", sessionID, err)
	}
	if out.Item == nil {
		return triage.State{}, ErrNotFound
	}
	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return triage.State{}, fmt.Errorf("session: failed to decode item: %w", err)
	}
	if rec.ExpiresAt > 0 && rec.ExpiresAt < s.now().Unix() {
		// DynamoDB deletes expired items lazily.
		return triage.State{}, ErrNotFound
	}
	return decode([]byte(rec.State))
}

func (s *DynamoStore) Save(ctx context.Context, state triage.State) error {
	data, err := encode(state)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	item, err := attributevalue.MarshalMap(record{
		SessionID: state.ID,
		Step:      string(state.Step()),
		Emergency: state.Emergency,
		State:     string(data),
		UpdatedAt: now.Format(time.RFC3339Nano),
		ExpiresAt: now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("session: failed to marshal item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("session: failed to persist %s: %w", state.ID, err)
	}
	s.logger.Debug("session saved", "session_id", state.ID, "step", state.Step())
	return nil
}
