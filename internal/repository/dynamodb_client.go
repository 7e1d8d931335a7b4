package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"ambubot/internal/domain"
)

const (
	pkPrefixUser       = "USER#"
	skState            = "STATE#"
	defaultTTLDuration = 30 * time.Minute
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client wraps a DynamoDB table for conversation state.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// New creates a new repository Client. A non-positive ttl falls back to 30
// minutes.
func New(api dynamodbAPI, tableName string, ttl time.Duration) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultTTLDuration
	}
	return &Client{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// userPK returns the DynamoDB partition key for a user.
func userPK(userID string) string {
	return pkPrefixUser + userID
}

func (c *Client) key(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
		"SK": &types.AttributeValueMemberS{Value: skState},
	}
}

// Get reads the conversation for userID with a consistent read.
func (c *Client) Get(ctx context.Context, userID string) (domain.Conversation, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Conversation{}, false, fmt.Errorf("repository: Get get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Conversation{}, false, nil
	}

	conv, err := itemToConversation(out.Item)
	if err != nil {
		return domain.Conversation{}, false, fmt.Errorf("repository: Get decode: %w", err)
	}
	// DynamoDB deletes expired items lazily, so filter them here.
	if exp, err := intAttr(out.Item, "ttl"); err == nil && int64(exp) < c.now().Unix() {
		return domain.Conversation{}, false, nil
	}
	return conv, true, nil
}

// Save writes the conversation guarded by its version.
func (c *Client) Save(ctx context.Context, conv domain.Conversation) (domain.Conversation, error) {
	if strings.TrimSpace(conv.UserID) == "" {
		return domain.Conversation{}, errors.New("repository: Save: user id is required")
	}

	next := conv
	next.Version = conv.Version + 1
	next.UpdatedAt = c.now().UTC()

	in := &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      conversationItem(next, c.ttlValue()),
	}
	if conv.Version == 0 {
		// An expired item Get already reported as missing may still be in the
		// table until the TTL sweeper removes it.
		in.ConditionExpression = aws.String("attribute_not_exists(PK) OR #ttl < :now")
		in.ExpressionAttributeNames = map[string]string{"#ttl": "ttl"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(c.now().Unix(), 10)},
		}
	} else {
		in.ConditionExpression = aws.String("version = :v")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(conv.Version, 10)},
		}
	}

	if _, err := c.api.PutItem(ctx, in); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return domain.Conversation{}, ErrConflict
		}
		return domain.Conversation{}, fmt.Errorf("repository: Save: %w", err)
	}
	return next, nil
}

// Delete removes the conversation for userID. Deleting a missing item is not
// an error.
func (c *Client) Delete(ctx context.Context, userID string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.key(userID),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

// ttlValue returns the Unix timestamp at which a freshly saved item expires.
func (c *Client) ttlValue() int64 {
	return c.now().Add(c.ttl).Unix()
}

func conversationItem(conv domain.Conversation, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(conv.UserID)},
		"SK":        &types.AttributeValueMemberS{Value: skState},
		"userId":    &types.AttributeValueMemberS{Value: conv.UserID},
		"symptom":   &types.AttributeValueMemberS{Value: conv.Symptom},
		"followUps": stringList(conv.FollowUps),
		"answers":   stringList(conv.Answers),
		"step":      &types.AttributeValueMemberN{Value: strconv.Itoa(conv.Step)},
		"emergency": &types.AttributeValueMemberBOOL{Value: conv.Emergency},
		"version":   &types.AttributeValueMemberN{Value: strconv.FormatInt(conv.Version, 10)},
		"updatedAt": &types.AttributeValueMemberS{Value: conv.UpdatedAt.Format(time.RFC3339)},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
}

// itemToConversation converts a DynamoDB attribute map to a Conversation.
func itemToConversation(item map[string]types.AttributeValue) (domain.Conversation, error) {
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.Conversation{}, err
	}
	step, err := intAttr(item, "step")
	if err != nil {
		return domain.Conversation{}, err
	}
	version, err := intAttr(item, "version")
	if err != nil {
		return domain.Conversation{}, err
	}
	followUps, err := listAttr(item, "followUps")
	if err != nil {
		return domain.Conversation{}, err
	}
	answers, err := listAttr(item, "answers")
	if err != nil {
		return domain.Conversation{}, err
	}
	symptom, _ := strAttr(item, "symptom") // allow empty at step 0

	conv := domain.Conversation{
		UserID:    userID,
		Symptom:   symptom,
		FollowUps: followUps,
		Answers:   answers,
		Step:      step,
		Version:   int64(version),
	}
	if b, ok := item["emergency"].(*types.AttributeValueMemberBOOL); ok {
		conv.Emergency = b.Value
	}
	if raw, err := strAttr(item, "updatedAt"); err == nil {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			conv.UpdatedAt = ts
		}
	}
	return conv, nil
}

func stringList(values []string) *types.AttributeValueMemberL {
	list := make([]types.AttributeValue, 0, len(values))
	for _, v := range values {
		list = append(list, &types.AttributeValueMemberS{Value: v})
	}
	return &types.AttributeValueMemberL{Value: list}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func listAttr(item map[string]types.AttributeValue, key string) ([]string, error) {
	v, ok := item[key]
	if !ok {
		return nil, nil
	}
	l, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a list", key)
	}
	out := make([]string, 0, len(l.Value))
	for i, el := range l.Value {
		s, ok := el.(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("repository: attribute %q[%d] is not a string", key, i)
		}
		out = append(out, s.Value)
	}
	return out, nil
}
