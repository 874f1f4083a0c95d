// Package lambdafn invokes the topic classification model through an AWS
// Lambda function.
package lambdafn

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// API is the subset of the Lambda client the classifier uses.
type API interface {
	Invoke(ctx domain.Context, in *lambda.InvokeInput, opts ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Client implements domain.Classifier on top of a Lambda function.
type Client struct {
	api      API
	function string
}

// New constructs a Client from an AWS config.
func New(cfg aws.Config, function string) *Client {
	return &Client{api: lambda.NewFromConfig(cfg), function: function}
}

// NewWithAPI constructs a Client around an existing API, used by tests.
func NewWithAPI(api API, function string) *Client {
	return &Client{api: api, function: function}
}

// Classify sends the conversation payload to the model and decodes its
// verdict. A function-level error surfaces as a normal Go error so callers
// can retry.
func (c *Client) Classify(ctx domain.Context, payload domain.ClassifierPayload) (domain.ClassifierResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.ClassifierResult{}, fmt.Errorf("op=classifier.classify: marshal: %w", err)
	}
	out, err := c.api.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(c.function),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        body,
	})
	if err != nil {
		return domain.ClassifierResult{}, fmt.Errorf("op=classifier.classify: invoke: %w", err)
	}
	if out.FunctionError != nil {
		slog.Error("classifier function error",
			slog.String("function", c.function),
			slog.String("error", aws.ToString(out.FunctionError)),
			slog.String("payload", string(out.Payload)))
		return domain.ClassifierResult{}, fmt.Errorf("op=classifier.classify: function error: %s", aws.ToString(out.FunctionError))
	}
	var res domain.ClassifierResult
	if err := json.Unmarshal(out.Payload, &res); err != nil {
		return domain.ClassifierResult{}, fmt.Errorf("op=classifier.classify: decode response: %w", err)
	}
	return res, nil
}
