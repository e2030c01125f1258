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

	"slide-master/internal/domain"
)

const skProfile = "PROFILE"

// dynamodbAPI is the minimal DynamoDB interface required by DynamoAccounts.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoAccounts stores entitlement accounts in a single DynamoDB table keyed by PK/SK.
type DynamoAccounts struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// NewDynamoAccounts creates an account store on tableName.
func NewDynamoAccounts(api dynamodbAPI, tableName string) (*DynamoAccounts, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoAccounts{api: api, tableName: tableName, now: time.Now}, nil
}

// accountPK returns the DynamoDB partition key for a requester.
func accountPK(requesterID string) string {
	return "ACCT#" + requesterID
}

func (c *DynamoAccounts) key(requesterID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: accountPK(requesterID)},
		"SK": &types.AttributeValueMemberS{Value: skProfile},
	}
}

// Get returns the account. A requester without a record has a zero balance.
func (c *DynamoAccounts) Get(ctx context.Context, requesterID string) (domain.Account, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(requesterID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("repository: Get get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Account{RequesterID: requesterID}, nil
	}
	acct, err := itemToAccount(requesterID, out.Item)
	if err != nil {
		return domain.Account{}, fmt.Errorf("repository: Get decode: %w", err)
	}
	return acct, nil
}

// ConditionalDecrement lowers the balance by one iff it is positive, in a
// single conditional update.
func (c *DynamoAccounts) ConditionalDecrement(ctx context.Context, requesterID string) (int, bool, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 c.key(requesterID),
		UpdateExpression:    aws.String("SET balance = balance - :one, updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(PK) AND balance > :zero"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":now":  &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)},
		},
		ReturnValues:                        types.ReturnValueUpdatedNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			balance, _ := intAttr(ccf.Item, "balance")
			return balance, false, nil
		}
		return 0, false, fmt.Errorf("repository: ConditionalDecrement: %w", err)
	}
	remaining, err := intAttr(out.Attributes, "balance")
	if err != nil {
		return 0, false, fmt.Errorf("repository: ConditionalDecrement decode balance: %w", err)
	}
	return remaining, true, nil
}

// Credit adds amount to the balance, creating the record if needed.
func (c *DynamoAccounts) Credit(ctx context.Context, requesterID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("repository: Credit: amount must be positive, got %d", amount)
	}
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              c.key(requesterID),
		UpdateExpression: aws.String("ADD balance :amount SET requesterId = :id, updatedAt = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":amount": &types.AttributeValueMemberN{Value: strconv.Itoa(amount)},
			":id":     &types.AttributeValueMemberS{Value: requesterID},
			":now":    &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("repository: Credit: %w", err)
	}
	balance, err := intAttr(out.Attributes, "balance")
	if err != nil {
		return 0, fmt.Errorf("repository: Credit decode balance: %w", err)
	}
	return balance, nil
}

// Ensure creates the account with the initial balance unless it exists.
// The boolean reports whether this call created it.
func (c *DynamoAccounts) Ensure(ctx context.Context, requesterID string, initial int) (domain.Account, bool, error) {
	acct := domain.Account{RequesterID: requesterID, Balance: initial}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                c.accountItem(acct),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err == nil {
		return acct, true, nil
	}
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return domain.Account{}, false, fmt.Errorf("repository: Ensure: %w", err)
	}
	existing, err := c.Get(ctx, requesterID)
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("repository: Ensure: %w", err)
	}
	return existing, false, nil
}

// SetUnlimited grants or revokes the unlimited flag.
func (c *DynamoAccounts) SetUnlimited(ctx context.Context, requesterID string, unlimited bool) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              c.key(requesterID),
		UpdateExpression: aws.String("SET unlimited = :u, requesterId = :id, balance = if_not_exists(balance, :zero), updatedAt = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u":    &types.AttributeValueMemberBOOL{Value: unlimited},
			":id":   &types.AttributeValueMemberS{Value: requesterID},
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":now":  &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SetUnlimited: %w", err)
	}
	return nil
}

func (c *DynamoAccounts) accountItem(a domain.Account) map[string]types.AttributeValue {
	now := c.now().UTC().Format(time.RFC3339)
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: accountPK(a.RequesterID)},
		"SK":          &types.AttributeValueMemberS{Value: skProfile},
		"requesterId": &types.AttributeValueMemberS{Value: a.RequesterID},
		"balance":     &types.AttributeValueMemberN{Value: strconv.Itoa(a.Balance)},
		"unlimited":   &types.AttributeValueMemberBOOL{Value: a.Unlimited},
		"createdAt":   &types.AttributeValueMemberS{Value: now},
		"updatedAt":   &types.AttributeValueMemberS{Value: now},
	}
}

// itemToAccount converts a DynamoDB attribute map to an Account.
func itemToAccount(requesterID string, item map[string]types.AttributeValue) (domain.Account, error) {
	balance, err := intAttr(item, "balance")
	if err != nil {
		return domain.Account{}, err
	}
	unlimited, _ := boolAttr(item, "unlimited") // absent means false
	return domain.Account{RequesterID: requesterID, Balance: balance, Unlimited: unlimited}, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) (bool, error) {
	v, ok := item[key]
	if !ok {
		return false, fmt.Errorf("repository: missing attribute %q", key)
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, fmt.Errorf("repository: attribute %q is not a bool", key)
	}
	return b.Value, nil
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
