package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/erinder/internal/domain"
)

// VerificationRepo manages one-time verification codes and the verified flag
// they unlock on the users table.
// PK: subject_key, SK: code
type VerificationRepo struct {
	client     API
	tableName  string
	usersTable string
}

func NewVerificationRepo(client API, tableName, usersTable string) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName, usersTable: usersTable}
}

// FindActiveCode returns the newest code for subjectKey created after since.
func (r *VerificationRepo) FindActiveCode(ctx context.Context, subjectKey string, since time.Time) (*domain.VerificationCode, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("subject_key = :sk"),
		FilterExpression:       aws.String("created_at > :since"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk":    &types.AttributeValueMemberS{Value: subjectKey},
			":since": unixValue(since),
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, unavailable("query active codes", err)
	}
	var codes []domain.VerificationCode
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &codes); err != nil {
		return nil, fmt.Errorf("unmarshal codes: %w", err)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("active code for %s: %w", subjectKey, domain.ErrNotFound)
	}
	newest := codes[0]
	for _, c := range codes[1:] {
		if c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	return &newest, nil
}

func (r *VerificationRepo) FindCode(ctx context.Context, subjectKey, code string) (*domain.VerificationCode, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey("subject_key", subjectKey, "code", code),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, unavailable("get code", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("code for %s: %w", subjectKey, domain.ErrNotFound)
	}
	var v domain.VerificationCode
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, fmt.Errorf("unmarshal code: %w", err)
	}
	return &v, nil
}

// DeleteCodesFor removes every code issued to subjectKey and returns the count.
func (r *VerificationRepo) DeleteCodesFor(ctx context.Context, subjectKey string) (int, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("subject_key = :sk"),
		ProjectionExpression:   aws.String("subject_key, code"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk": &types.AttributeValueMemberS{Value: subjectKey},
		},
		ConsistentRead: aws.Bool(true),
	})
	var keys []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, unavailable("query codes", err)
		}
		keys = append(keys, page.Items...)
	}
	if err := batchDelete(ctx, r.client, r.tableName, keys); err != nil {
		return 0, unavailable("delete codes", err)
	}
	return len(keys), nil
}

func (r *VerificationRepo) InsertCode(ctx context.Context, v *domain.VerificationCode) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal code: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return unavailable("put code", err)
	}
	return nil
}

// DeleteCode removes one code. Returns domain.ErrNotFound if it was already gone.
func (r *VerificationRepo) DeleteCode(ctx context.Context, subjectKey, code string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 compositeKey("subject_key", subjectKey, "code", code),
		ConditionExpression: aws.String("attribute_exists(code)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("code for %s: %w", subjectKey, domain.ErrNotFound)
		}
		return unavailable("delete code", err)
	}
	return nil
}

// ConsumeCode deletes the code and marks the subject verified in one transaction.
// Neither write happens unless the code still exists, so a code can be spent once.
// Returns domain.ErrNotFound when the code was already consumed.
func (r *VerificationRepo) ConsumeCode(ctx context.Context, subjectKey, code string, now time.Time) error {
	verifiedAt, err := attributevalue.Marshal(now.UTC())
	if err != nil {
		return fmt.Errorf("marshal verified_at: %w", err)
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName:           aws.String(r.tableName),
					Key:                 compositeKey("subject_key", subjectKey, "code", code),
					ConditionExpression: aws.String("attribute_exists(code)"),
				},
			},
			{
				Update: &types.Update{
					TableName:        aws.String(r.usersTable),
					Key:              strKey("email", subjectKey),
					UpdateExpression: aws.String("SET verified = :true, verified_at = :at"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":true": &types.AttributeValueMemberBOOL{Value: true},
						":at":   verifiedAt,
					},
				},
			},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("code for %s: %w", subjectKey, domain.ErrNotFound)
		}
		return unavailable("consume code", err)
	}
	return nil
}

// GetUser reads the subject profile the verified flag lives on.
func (r *VerificationRepo) GetUser(ctx context.Context, email string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.usersTable),
		Key:       strKey("email", email),
	})
	if err != nil {
		return nil, unavailable("get user", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}
