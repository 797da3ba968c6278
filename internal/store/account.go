package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// Account is the billing state of one agent. Records are created on the
// first credit grant or subscription event.
type Account struct {
	UserID             string    `json:"userId" dynamodbav:"userId"`
	Credits            int64     `json:"credits" dynamodbav:"credits"`
	CustomerID         string    `json:"customerId,omitempty" dynamodbav:"customerId,omitempty"`
	SubscriptionID     string    `json:"subscriptionId,omitempty" dynamodbav:"subscriptionId,omitempty"`
	SubscriptionStatus string    `json:"subscriptionStatus,omitempty" dynamodbav:"subscriptionStatus,omitempty"`
	PriceID            string    `json:"priceId,omitempty" dynamodbav:"priceId,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

// Subscription is the subset of Account written by subscription events.
type Subscription struct {
	CustomerID string
	ID         string
	Status     string
	PriceID    string
}

// AccountStore persists billing state. Both backends implement it next to
// Store.
type AccountStore interface {
	// GetAccount returns nil, nil when the user has no account yet.
	GetAccount(ctx context.Context, userID string) (*Account, error)

	// AddCredits atomically adjusts the balance and returns the new value.
	AddCredits(ctx context.Context, userID string, delta int64) (int64, error)

	// SetSubscription replaces the subscription fields of an account.
	SetSubscription(ctx context.Context, userID string, sub Subscription) error
}

var (
	_ AccountStore = (*DynamoStore)(nil)
	_ AccountStore = (*SQLiteStore)(nil)
)

// --- DynamoDB ---

const (
	userPKPrefix = "USER#"
	skAccount    = "ACCOUNT"
)

func userPK(userID string) string {
	return userPKPrefix + userID
}

func (s *DynamoStore) GetAccount(ctx context.Context, userID string) (*Account, error) {
	var a Account
	found, err := s.getItem(ctx, userPK(userID), skAccount, &a)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", userID, err)
	}
	if !found {
		return nil, nil
	}
	a.UserID = userID
	return &a, nil
}

func (s *DynamoStore) AddCredits(ctx context.Context, userID string, delta int64) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              itemKey(userPK(userID), skAccount),
		UpdateExpression: aws.String("ADD credits :d SET userId = :u, updatedAt = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)},
			":u": &types.AttributeValueMemberS{Value: userID},
			":t": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("add credits for %s: %w", userID, err)
	}

	n, ok := out.Attributes["credits"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("add credits for %s: missing balance in response", userID)
	}
	balance, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("add credits for %s: %w", userID, err)
	}

	log.Debug().Str("userId", userID).Int64("delta", delta).Int64("balance", balance).Msg("Credits updated in DynamoDB")
	return balance, nil
}

func (s *DynamoStore) SetSubscription(ctx context.Context, userID string, sub Subscription) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              itemKey(userPK(userID), skAccount),
		UpdateExpression: aws.String("SET userId = :u, customerId = :c, subscriptionId = :id, subscriptionStatus = :s, priceId = :p, updatedAt = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u":  &types.AttributeValueMemberS{Value: userID},
			":c":  &types.AttributeValueMemberS{Value: sub.CustomerID},
			":id": &types.AttributeValueMemberS{Value: sub.ID},
			":s":  &types.AttributeValueMemberS{Value: sub.Status},
			":p":  &types.AttributeValueMemberS{Value: sub.PriceID},
			":t":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("set subscription for %s: %w", userID, err)
	}
	return nil
}

// --- SQLite ---

func (s *SQLiteStore) GetAccount(ctx context.Context, userID string) (*Account, error) {
	var (
		a                          Account
		customer, subID, subStatus sql.NullString
		price                      sql.NullString
		updatedAt                  string
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT user_id, credits, customer_id, subscription_id, subscription_status, price_id, updated_at
        FROM accounts WHERE user_id = ?`, userID,
	).Scan(&a.UserID, &a.Credits, &customer, &subID, &subStatus, &price, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", userID, err)
	}
	a.CustomerID = customer.String
	a.SubscriptionID = subID.String
	a.SubscriptionStatus = subStatus.String
	a.PriceID = price.String
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func (s *SQLiteStore) AddCredits(ctx context.Context, userID string, delta int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO accounts (user_id, credits, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET
            credits = credits + excluded.credits,
            updated_at = excluded.updated_at
        RETURNING credits`,
		userID, delta, formatTime(time.Now()),
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("add credits for %s: %w", userID, err)
	}
	return balance, nil
}

func (s *SQLiteStore) SetSubscription(ctx context.Context, userID string, sub Subscription) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO accounts (user_id, customer_id, subscription_id, subscription_status, price_id, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET
            customer_id = excluded.customer_id,
            subscription_id = excluded.subscription_id,
            subscription_status = excluded.subscription_status,
            price_id = excluded.price_id,
            updated_at = excluded.updated_at`,
		userID, nullableString(sub.CustomerID), nullableString(sub.ID), nullableString(sub.Status),
		nullableString(sub.PriceID), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set subscription for %s: %w", userID, err)
	}
	return nil
}
