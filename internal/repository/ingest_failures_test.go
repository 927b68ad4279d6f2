package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"pioneer-chat/internal/domain"
)

type fakeDynamo struct {
	putErr       error
	lastPutInput *dynamodb.PutItemInput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "ingest-failures")
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC) }
	c.newID = func() string { return "id-1" }
	return c
}

func strVal(t *testing.T, item map[string]types.AttributeValue, key string) string {
	t.Helper()
	v, ok := item[key].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %q is not a string", key)
	return v.Value
}

func numVal(t *testing.T, item map[string]types.AttributeValue, key string) string {
	t.Helper()
	v, ok := item[key].(*types.AttributeValueMemberN)
	require.True(t, ok, "attribute %q is not a number", key)
	return v.Value
}

func TestRecordFailedIngest_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	err := c.RecordFailedIngest(context.Background(), domain.IngestFailure{
		UserID: "u-1",
		Reason: "pioneer: ingest: unexpected status 503",
		Status: 503,
		Messages: []domain.Message{
			{Role: "user", Content: "Hi", Timestamp: "2026-02-25T10:00:00Z"},
		},
	})
	require.NoError(t, err)

	in := db.lastPutInput
	require.Equal(t, "ingest-failures", *in.TableName)
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *in.ConditionExpression)
	require.Equal(t, "USER#u-1", strVal(t, in.Item, "PK"))
	require.Equal(t, "INGEST#2026-02-25T10:00:00Z#id-1", strVal(t, in.Item, "SK"))
	require.Equal(t, "503", numVal(t, in.Item, "status"))
	require.Equal(t, "1774605600", numVal(t, in.Item, "ttl"))

	var msgs []domain.Message
	require.NoError(t, json.Unmarshal([]byte(strVal(t, in.Item, "messages")), &msgs))
	require.Equal(t, "Hi", msgs[0].Content)
}

func TestRecordFailedIngest_DynamoError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("ProvisionedThroughputExceededException")}
	c := mustNewClient(t, db)
	err := c.RecordFailedIngest(context.Background(), domain.IngestFailure{UserID: "u-1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "RecordFailedIngest")
}

func TestRecordFailedIngest_MissingUserID(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	err := c.RecordFailedIngest(context.Background(), domain.IngestFailure{UserID: " "})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
	require.Nil(t, db.lastPutInput)
}

func TestUserPK(t *testing.T) {
	require.Equal(t, "USER#abc", userPK("abc"))
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}
