package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"update-user-service/internal/domain"
	"update-user-service/internal/repository"
)

// UpdateItemAPI is the subset of the DynamoDB client the repository needs.
type UpdateItemAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

type UserRepository struct {
	client UpdateItemAPI
	table  string
}

func NewUserRepository(client UpdateItemAPI, table string) repository.UserRepository {
	return &UserRepository{client: client, table: table}
}

func (r *UserRepository) Update(ctx context.Context, username string, fields domain.UserFields) (domain.UpdateResult, error) {
	expr, err := buildUpdate(fields)
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("%w: build update expression: %w", repository.ErrStorage, err)
	}

	key, err := attributevalue.MarshalMap(map[string]string{"username": username})
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("%w: marshal key: %w", repository.ErrStorage, err)
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("%w: update item %s: %w", repository.ErrStorage, username, err)
	}

	attrs := map[string]any{}
	if len(out.Attributes) > 0 {
		if err := attributevalue.UnmarshalMap(out.Attributes, &attrs); err != nil {
			return domain.UpdateResult{}, fmt.Errorf("%w: decode attributes: %w", repository.ErrStorage, err)
		}
	}
	return domain.UpdateResult{Attributes: attrs}, nil
}

// buildUpdate sets the password hash plus whichever profile fields were
// provided. The builder aliases every name, which covers the reserved word
// "password".
func buildUpdate(fields domain.UserFields) (expression.Expression, error) {
	update := expression.Set(expression.Name("password"), expression.Value(fields.PasswordHash))
	optional := []struct {
		name  string
		value *string
	}{
		{"firstName", fields.FirstName},
		{"lastName", fields.LastName},
		{"email", fields.Email},
	}
	for _, f := range optional {
		if f.value == nil {
			continue
		}
		update = update.Set(expression.Name(f.name), expression.Value(*f.value))
	}
	return expression.NewBuilder().WithUpdate(update).Build()
}
