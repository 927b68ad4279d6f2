package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"pioneer-chat/internal/domain"
)

const (
	skPrefixIngest = "INGEST#"
	ttlDuration    = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client records failed ingestions in a DynamoDB table for manual inspection.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
	newID     func() string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{
		api:       api,
		tableName: tableName,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func userPK(userID string) string {
	return "USER#" + userID
}

func ingestSK(ts time.Time, id string) string {
	return skPrefixIngest + ts.UTC().Format(time.RFC3339Nano) + "#" + id
}

// RecordFailedIngest writes one failure record. Records are never overwritten.
func (c *Client) RecordFailedIngest(ctx context.Context, f domain.IngestFailure) error {
	if strings.TrimSpace(f.UserID) == "" {
		return errors.New("repository: RecordFailedIngest: user id is required")
	}
	msgs, err := json.Marshal(f.Messages)
	if err != nil {
		return fmt.Errorf("repository: RecordFailedIngest marshal messages: %w", err)
	}

	now := c.now().UTC()
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":       &types.AttributeValueMemberS{Value: userPK(f.UserID)},
			"SK":       &types.AttributeValueMemberS{Value: ingestSK(now, c.newID())},
			"userId":   &types.AttributeValueMemberS{Value: f.UserID},
			"reason":   &types.AttributeValueMemberS{Value: f.Reason},
			"status":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", f.Status)},
			"messages": &types.AttributeValueMemberS{Value: string(msgs)},
			"ttl":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(ttlDuration).Unix())},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: RecordFailedIngest: %w", err)
	}
	return nil
}
