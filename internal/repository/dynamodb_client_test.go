package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"ambubot/internal/domain"
)

type fakeDynamo struct {
	getOut          *dynamodb.GetItemOutput
	getErr          error
	putErr          error
	deleteErr       error
	lastGetInput    *dynamodb.GetItemInput
	lastPutInput    *dynamodb.PutItemInput
	lastDeleteInput *dynamodb.DeleteItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDeleteInput = in
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

// fakeTable keeps items by PK and evaluates the condition expressions Save
// sends, the way DynamoDB does. Expired items stay until removed explicitly.
type fakeTable struct {
	items map[string]map[string]types.AttributeValue
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeTable) pk(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[f.pk(in.Key)]}, nil
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	pk := f.pk(in.Item)
	existing, exists := f.items[pk]
	if !f.conditionHolds(in, existing, exists) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	f.items[pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, f.pk(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeTable) conditionHolds(in *dynamodb.PutItemInput, existing map[string]types.AttributeValue, exists bool) bool {
	num := func(item map[string]types.AttributeValue, name string) string {
		v, ok := item[name].(*types.AttributeValueMemberN)
		if !ok {
			return ""
		}
		return v.Value
	}
	value := func(name string) string {
		return in.ExpressionAttributeValues[name].(*types.AttributeValueMemberN).Value
	}
	switch aws.ToString(in.ConditionExpression) {
	case "":
		return true
	case "attribute_not_exists(PK)":
		return !exists
	case "attribute_not_exists(PK) OR #ttl < :now":
		if !exists {
			return true
		}
		var ttl, now int64
		_, _ = fmt.Sscan(num(existing, in.ExpressionAttributeNames["#ttl"]), &ttl)
		_, _ = fmt.Sscan(value(":now"), &now)
		return ttl < now
	case "version = :v":
		return exists && num(existing, "version") == value(":v")
	default:
		panic("fakeTable: unsupported condition " + aws.ToString(in.ConditionExpression))
	}
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func mustNewClient(t *testing.T, db dynamodbAPI) *Client {
	t.Helper()
	c, err := New(db, "test-table", time.Hour)
	require.NoError(t, err)
	c.now = func() time.Time { return fixedNow }
	return c
}

func makeStateItem(userID string, step int, version int64, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(userID)},
		"SK":        &types.AttributeValueMemberS{Value: skState},
		"userId":    &types.AttributeValueMemberS{Value: userID},
		"symptom":   &types.AttributeValueMemberS{Value: "headache"},
		"followUps": stringList([]string{"How long?", "How bad?", "Any nausea?"}),
		"answers":   stringList([]string{"two days"}),
		"step":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", step)},
		"emergency": &types.AttributeValueMemberBOOL{Value: false},
		"version":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", version)},
		"updatedAt": &types.AttributeValueMemberS{Value: fixedNow.Format(time.RFC3339)},
		"ttl":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttl)},
	}
}

func TestGet_HappyPath(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeStateItem("alice", 2, 3, fixedNow.Add(time.Minute).Unix())}}
	c := mustNewClient(t, db)

	conv, ok, err := c.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", conv.UserID)
	require.Equal(t, "headache", conv.Symptom)
	require.Equal(t, []string{"How long?", "How bad?", "Any nausea?"}, conv.FollowUps)
	require.Equal(t, []string{"two days"}, conv.Answers)
	require.Equal(t, 2, conv.Step)
	require.Equal(t, int64(3), conv.Version)
	require.True(t, *db.lastGetInput.ConsistentRead)
	require.Equal(t, "USER#alice", db.lastGetInput.Key["PK"].(*types.AttributeValueMemberS).Value)
}

func TestGet_Missing(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewClient(t, db)
	_, ok, err := c.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGet_ExpiredItemIsMissing(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeStateItem("alice", 1, 1, fixedNow.Add(-time.Second).Unix())}}
	c := mustNewClient(t, db)
	_, ok, err := c.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGet_GetItemError(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("boom")}
	c := mustNewClient(t, db)
	_, _, err := c.Get(context.Background(), "alice")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Get get item")
}

func TestGet_MalformedStep(t *testing.T) {
	item := makeStateItem("alice", 1, 1, fixedNow.Add(time.Minute).Unix())
	item["step"] = &types.AttributeValueMemberS{Value: "bad"}
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: item}}
	c := mustNewClient(t, db)
	_, _, err := c.Get(context.Background(), "alice")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode")
}

func TestGet_MalformedList(t *testing.T) {
	item := makeStateItem("alice", 1, 1, fixedNow.Add(time.Minute).Unix())
	item["answers"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberN{Value: "1"}}}
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: item}}
	c := mustNewClient(t, db)
	_, _, err := c.Get(context.Background(), "alice")
	require.Error(t, err)
	require.Contains(t, err.Error(), "answers")
}

func TestSave_NewConversationRequiresAbsence(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	saved, err := c.Save(context.Background(), domain.Conversation{UserID: "alice", Step: 1, FollowUps: []string{"q1"}})
	require.NoError(t, err)
	require.Equal(t, int64(1), saved.Version)
	require.Equal(t, fixedNow, saved.UpdatedAt)
	require.Equal(t, "attribute_not_exists(PK) OR #ttl < :now", *db.lastPutInput.ConditionExpression)
	require.Equal(t, "ttl", db.lastPutInput.ExpressionAttributeNames["#ttl"])
	require.Equal(t, fmt.Sprintf("%d", fixedNow.Unix()), db.lastPutInput.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value)
	require.Equal(t, "1", db.lastPutInput.Item["version"].(*types.AttributeValueMemberN).Value)
	require.Equal(t, fmt.Sprintf("%d", fixedNow.Add(time.Hour).Unix()), db.lastPutInput.Item["ttl"].(*types.AttributeValueMemberN).Value)
}

func TestSave_ExistingConversationChecksVersion(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	saved, err := c.Save(context.Background(), domain.Conversation{UserID: "alice", Step: 2, Version: 4})
	require.NoError(t, err)
	require.Equal(t, int64(5), saved.Version)
	require.Equal(t, "version = :v", *db.lastPutInput.ConditionExpression)
	require.Equal(t, "4", db.lastPutInput.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberN).Value)
}

func TestSave_ConditionFailureIsConflict(t *testing.T) {
	db := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{Message: aws.String("conditional request failed")}}
	c := mustNewClient(t, db)
	_, err := c.Save(context.Background(), domain.Conversation{UserID: "alice", Version: 1})
	require.ErrorIs(t, err, ErrConflict)
}

func TestSave_DynamoError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("ProvisionedThroughputExceededException")}
	c := mustNewClient(t, db)
	_, err := c.Save(context.Background(), domain.Conversation{UserID: "alice"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConflict)
	require.Contains(t, err.Error(), "Save")
}

func TestSave_MissingUserID(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	_, err := c.Save(context.Background(), domain.Conversation{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestDelete_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.Delete(context.Background(), "alice"))
	require.Equal(t, skState, db.lastDeleteInput.Key["SK"].(*types.AttributeValueMemberS).Value)
}

func TestDelete_DynamoError(t *testing.T) {
	db := &fakeDynamo{deleteErr: errors.New("internal server error")}
	c := mustNewClient(t, db)
	err := c.Delete(context.Background(), "alice")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Delete")
}

func TestRoundTrip_ItemEncoding(t *testing.T) {
	conv := domain.Conversation{
		UserID:    "bob",
		Symptom:   "chest pain",
		FollowUps: []string{"a", "b"},
		Answers:   []string{"x"},
		Step:      2,
		Emergency: true,
		Version:   7,
		UpdatedAt: fixedNow,
	}
	got, err := itemToConversation(conversationItem(conv, 0))
	require.NoError(t, err)
	require.Equal(t, conv, got)
}

func TestUserPK(t *testing.T) {
	require.Equal(t, "USER#my-user", userPK("my-user"))
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "test-table", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(&fakeDynamo{}, " ", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestNew_DefaultTTL(t *testing.T) {
	c, err := New(&fakeDynamo{}, "t", 0)
	require.NoError(t, err)
	require.Equal(t, defaultTTLDuration, c.ttl)
}

func TestSave_ReplacesExpiredItemStillInTable(t *testing.T) {
	table := newFakeTable()
	table.items[userPK("alice")] = makeStateItem("alice", 2, 3, fixedNow.Add(-time.Minute).Unix())
	c := mustNewClient(t, table)

	_, ok, err := c.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.False(t, ok)

	saved, err := c.Save(context.Background(), domain.NewConversation("alice"))
	require.NoError(t, err)
	require.Equal(t, int64(1), saved.Version)

	conv, ok, err := c.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), conv.Version)
	require.Equal(t, domain.StepAwaitingSymptom, conv.Step)
}

func TestSave_LiveItemBlocksNewConversation(t *testing.T) {
	table := newFakeTable()
	table.items[userPK("alice")] = makeStateItem("alice", 2, 3, fixedNow.Add(time.Minute).Unix())
	c := mustNewClient(t, table)

	_, err := c.Save(context.Background(), domain.NewConversation("alice"))
	require.ErrorIs(t, err, ErrConflict)
}

func TestSave_ConversationLifecycleOverTable(t *testing.T) {
	table := newFakeTable()
	c := mustNewClient(t, table)
	ctx := context.Background()

	first, err := c.Save(ctx, domain.Conversation{UserID: "alice", Step: 1, FollowUps: []string{"How long?"}})
	require.NoError(t, err)

	next := first
	next.Answers = []string{"two days"}
	next.Step = domain.StepRemedy
	_, err = c.Save(ctx, next)
	require.NoError(t, err)

	// A writer still holding the first revision loses.
	_, err = c.Save(ctx, first)
	require.ErrorIs(t, err, ErrConflict)

	require.NoError(t, c.Delete(ctx, "alice"))
	_, ok, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	require.False(t, ok)
}
