package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ErrNotFound is returned when the named parameter does not exist.
var ErrNotFound = errors.New("paramstore: parameter not found")

// ssmAPI is satisfied by *ssm.Client.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter reads a decrypted parameter value by name.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client reads API keys stored as SecureString parameters.
type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

// Secret reads the API key stored under name.
func (c *Client) Secret(ctx context.Context, name string) (string, error) {
	return Secret(ctx, c, name)
}

type tokenPayload struct {
	Token string `json:"token"`
}

// Secret reads an API key through g. The stored value is either a JSON object
// with a "token" field or the bare key.
func Secret(ctx context.Context, g Getter, name string) (string, error) {
	if g == nil {
		return "", errors.New("paramstore: getter is nil")
	}
	raw, err := g.GetParameter(ctx, name)
	if err != nil {
		return "", err
	}
	key, err := decodeSecret(raw)
	if err != nil {
		return "", fmt.Errorf("paramstore: secret %q: %w", name, err)
	}
	return key, nil
}

func decodeSecret(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			return "", fmt.Errorf("unmarshal token payload: %w", err)
		}
		raw = strings.TrimSpace(tp.Token)
	}
	if raw == "" {
		return "", errors.New("empty value")
	}
	return raw, nil
}
