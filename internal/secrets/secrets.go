package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"update-user-service/internal/domain"
)

// ErrFetch wraps every failure to resolve the startup secrets.
var ErrFetch = errors.New("fetch secrets")

// Provider resolves the credentials needed to reach the storage backend.
type Provider interface {
	Fetch(ctx context.Context) (domain.Secrets, error)
}

// Invoker is the subset of the Lambda client used by LambdaProvider.
type Invoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaProvider reads secrets from a function that answers with an API
// Gateway style envelope: {"body": "{\"secret\": \"{...}\"}"}.
type LambdaProvider struct {
	client   Invoker
	function string
}

func NewLambdaProvider(client Invoker, function string) *LambdaProvider {
	return &LambdaProvider{client: client, function: function}
}

type invokePayload struct {
	ErrorMessage string `json:"errorMessage"`
	Body         string `json:"body"`
}

type secretBody struct {
	Secret string `json:"secret"`
}

func (p *LambdaProvider) Fetch(ctx context.Context) (domain.Secrets, error) {
	out, err := p.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(p.function),
	})
	if err != nil {
		return domain.Secrets{}, fmt.Errorf("%w: invoke %s: %w", ErrFetch, p.function, err)
	}
	if fnErr := aws.ToString(out.FunctionError); fnErr != "" {
		return domain.Secrets{}, fmt.Errorf("%w: function %s failed: %s", ErrFetch, p.function, fnErr)
	}
	return decodeEnvelope(out.Payload)
}

func decodeEnvelope(raw []byte) (domain.Secrets, error) {
	var payload invokePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Secrets{}, fmt.Errorf("%w: decode payload: %w", ErrFetch, err)
	}
	if payload.ErrorMessage != "" {
		return domain.Secrets{}, fmt.Errorf("%w: %s", ErrFetch, payload.ErrorMessage)
	}

	var body secretBody
	if err := json.Unmarshal([]byte(payload.Body), &body); err != nil {
		return domain.Secrets{}, fmt.Errorf("%w: decode body: %w", ErrFetch, err)
	}

	var secrets domain.Secrets
	if err := json.Unmarshal([]byte(body.Secret), &secrets); err != nil {
		return domain.Secrets{}, fmt.Errorf("%w: decode secret: %w", ErrFetch, err)
	}
	if strings.TrimSpace(secrets.AccessKeyID) == "" || strings.TrimSpace(secrets.SecretAccessKey) == "" {
		return domain.Secrets{}, fmt.Errorf("%w: secret is missing aws credentials", ErrFetch)
	}

	return secrets, nil
}
