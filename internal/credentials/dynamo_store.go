package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoAPI is the minimal DynamoDB interface required by the store.
// Defined here for testability.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type dynamoStore struct {
	api       dynamoAPI
	tableName string
}

// NewDynamoStore wraps a DynamoDB table keyed by user_id, one item per user.
func NewDynamoStore(api dynamoAPI, tableName string) (Store, error) {
	if api == nil {
		return nil, errors.New("credentials: dynamo api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("credentials: table name must not be empty")
	}
	return &dynamoStore{api: api, tableName: tableName}, nil
}

func (s *dynamoStore) Get(ctx context.Context, userID string) (Credentials, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		// Registration is immediately followed by reads of the same record.
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("credentials: dynamo get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return Credentials{}, ErrNotFound
	}

	var creds Credentials
	if creds.Endpoint, err = strAttr(out.Item, "endpoint"); err != nil {
		return Credentials{}, fmt.Errorf("credentials: dynamo get: %w", err)
	}
	if creds.Identifier, err = strAttr(out.Item, "identifier"); err != nil {
		return Credentials{}, fmt.Errorf("credentials: dynamo get: %w", err)
	}
	if creds.Secret, err = strAttr(out.Item, "secret"); err != nil {
		return Credentials{}, fmt.Errorf("credentials: dynamo get: %w", err)
	}
	return creds, nil
}

func (s *dynamoStore) Upsert(ctx context.Context, userID string, creds Credentials) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"user_id":    &types.AttributeValueMemberS{Value: userID},
			"endpoint":   &types.AttributeValueMemberS{Value: creds.Endpoint},
			"identifier": &types.AttributeValueMemberS{Value: creds.Identifier},
			"secret":     &types.AttributeValueMemberS{Value: creds.Secret},
		},
	})
	if err != nil {
		return fmt.Errorf("credentials: dynamo put: %w", err)
	}
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}
