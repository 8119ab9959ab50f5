package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wave-api/internal/domain"
)

// MessageRepo stores each user's message log. PK: user_id, SK: message_id.
type MessageRepo struct {
	client    API
	tableName string
}

func NewMessageRepo(client API, tableName string) *MessageRepo {
	return &MessageRepo{client: client, tableName: tableName}
}

// ListByUser returns every message in the user's log, following pagination
// until the partition is exhausted.
func (r *MessageRepo) ListByUser(ctx context.Context, userID string) ([]domain.Message, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ConsistentRead:   aws.Bool(true),
		ScanIndexForward: aws.Bool(true),
	}
	var messages []domain.Message
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		var page []domain.Message
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		messages = append(messages, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return messages, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (r *MessageRepo) Put(ctx context.Context, userID string, m *domain.Message) error {
	m.UserID = userID
	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// Delete removes one message. Deleting an absent message succeeds.
func (r *MessageRepo) Delete(ctx context.Context, userID, messageID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey(fieldUserID, userID, fieldMessageID, messageID),
	})
	return err
}
