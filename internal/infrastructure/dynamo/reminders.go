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

const (
	dueIndex   = "pending-trigger_at-index"
	ownerIndex = "owner_id-index"
)

// ReminderRepo provides typed DynamoDB operations for the reminders table.
type ReminderRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewReminderRepo(client API, tableName string) *ReminderRepo {
	return &ReminderRepo{client: client, tableName: tableName, now: time.Now}
}

func (r *ReminderRepo) Put(ctx context.Context, rem *domain.Reminder) error {
	item, err := attributevalue.MarshalMap(rem)
	if err != nil {
		return fmt.Errorf("marshal reminder: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return unavailable("put reminder", err)
	}
	return nil
}

func (r *ReminderRepo) Get(ctx context.Context, reminderID string) (*domain.Reminder, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("reminder_id", reminderID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, unavailable("get reminder", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("reminder %s: %w", reminderID, domain.ErrNotFound)
	}
	var rem domain.Reminder
	if err := attributevalue.UnmarshalMap(out.Item, &rem); err != nil {
		return nil, fmt.Errorf("unmarshal reminder: %w", err)
	}
	return &rem, nil
}

// List returns every reminder for ownerID, or the whole table when ownerID is empty.
func (r *ReminderRepo) List(ctx context.Context, ownerID string) ([]domain.Reminder, error) {
	var items []map[string]types.AttributeValue
	if ownerID == "" {
		p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{TableName: aws.String(r.tableName)})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return nil, unavailable("scan reminders", err)
			}
			items = append(items, page.Items...)
		}
	} else {
		p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(ownerIndex),
			KeyConditionExpression: aws.String("owner_id = :oid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":oid": &types.AttributeValueMemberS{Value: ownerID},
			},
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return nil, unavailable("query reminders by owner", err)
			}
			items = append(items, page.Items...)
		}
	}
	reminders := []domain.Reminder{}
	if err := attributevalue.UnmarshalListOfMaps(items, &reminders); err != nil {
		return nil, fmt.Errorf("unmarshal reminders: %w", err)
	}
	return reminders, nil
}

// FindDue returns every undelivered reminder whose trigger time is at or before now.
// It queries the sparse pending index, so delivered reminders are never read.
func (r *ReminderRepo) FindDue(ctx context.Context, now time.Time) ([]domain.Reminder, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(dueIndex),
		KeyConditionExpression: aws.String("#p = :pending AND #t <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#p": "pending",
			"#t": "trigger_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: domain.PendingMarker},
			":now":     unixValue(now),
		},
	})
	var due []domain.Reminder
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, unavailable("query due reminders", err)
		}
		var batch []domain.Reminder
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal due reminders: %w", err)
		}
		// The index is eventually consistent; drop anything already marked.
		for _, rem := range batch {
			if rem.IsDue(now) {
				due = append(due, rem)
			}
		}
	}
	return due, nil
}

// MarkDelivered flips delivered to true and drops the reminder from the due index.
// The write only lands while the reminder is still pending at seenTriggerAt, so a
// reminder rescheduled mid-cycle stays armed. Returns domain.ErrNotFound when the
// reminder is gone or no longer matches.
func (r *ReminderRepo) MarkDelivered(ctx context.Context, reminderID string, seenTriggerAt time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("reminder_id", reminderID),
		UpdateExpression:    aws.String("SET #d = :true, #u = :now REMOVE #p"),
		ConditionExpression: aws.String("attribute_exists(reminder_id) AND #p = :pending AND #t = :seen"),
		ExpressionAttributeNames: map[string]string{
			"#d": "delivered",
			"#u": "updated_at",
			"#p": "pending",
			"#t": "trigger_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":    &types.AttributeValueMemberBOOL{Value: true},
			":now":     &types.AttributeValueMemberS{Value: r.now().UTC().Format(time.RFC3339Nano)},
			":pending": &types.AttributeValueMemberS{Value: domain.PendingMarker},
			":seen":    unixValue(seenTriggerAt),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("reminder %s changed or deleted: %w", reminderID, domain.ErrNotFound)
		}
		return unavailable("mark reminder delivered", err)
	}
	return nil
}

// Update applies a partial update and returns the stored reminder.
func (r *ReminderRepo) Update(ctx context.Context, reminderID string, updates map[string]interface{}) (*domain.Reminder, error) {
	updates["updated_at"] = r.now().UTC().Format(time.RFC3339Nano)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return nil, err
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("reminder_id", reminderID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(reminder_id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, fmt.Errorf("reminder %s: %w", reminderID, domain.ErrNotFound)
		}
		return nil, unavailable("update reminder", err)
	}
	var rem domain.Reminder
	if err := attributevalue.UnmarshalMap(out.Attributes, &rem); err != nil {
		return nil, fmt.Errorf("unmarshal reminder: %w", err)
	}
	return &rem, nil
}

func (r *ReminderRepo) Delete(ctx context.Context, reminderID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("reminder_id", reminderID),
		ConditionExpression: aws.String("attribute_exists(reminder_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("reminder %s: %w", reminderID, domain.ErrNotFound)
		}
		return unavailable("delete reminder", err)
	}
	return nil
}

// DeleteAll removes every reminder for ownerID (the whole table when empty)
// and returns how many were deleted.
func (r *ReminderRepo) DeleteAll(ctx context.Context, ownerID string) (int, error) {
	reminders, err := r.List(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	keys := make([]map[string]types.AttributeValue, 0, len(reminders))
	for _, rem := range reminders {
		keys = append(keys, strKey("reminder_id", rem.ReminderID))
	}
	if err := batchDelete(ctx, r.client, r.tableName, keys); err != nil {
		return 0, unavailable("delete reminders", err)
	}
	return len(keys), nil
}
