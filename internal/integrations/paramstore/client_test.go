package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	out    *ssm.GetParameterOutput
	err    error
	lastIn *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastIn = in
	return f.out, f.err
}

type fakeGetter struct {
	val string
	err error
}

func (f *fakeGetter) GetParameter(context.Context, string) (string, error) {
	return f.val, f.err
}

func parameter(value string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name:  aws.String("/chat/openai-api-key"),
		Value: aws.String(value),
		Type:  types.ParameterTypeSecureString,
	}}
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestGetParameter_RequestsDecryptedTrimmedName(t *testing.T) {
	api := &fakeSSM{out: parameter("sk-123")}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /chat/openai-api-key ")
	require.NoError(t, err)
	require.Equal(t, "sk-123", v)
	require.Equal(t, "/chat/openai-api-key", aws.ToString(api.lastIn.Name))
	require.True(t, aws.ToBool(api.lastIn.WithDecryption))
}

func TestGetParameter_Errors(t *testing.T) {
	cases := []struct {
		name    string
		api     *fakeSSM
		param   string
		wantErr string
	}{
		{name: "empty name", api: &fakeSSM{}, param: "  ", wantErr: "name is required"},
		{name: "api error", api: &fakeSSM{err: errors.New("throttled")}, param: "p", wantErr: "throttled"},
		{name: "nil parameter", api: &fakeSSM{out: &ssm.GetParameterOutput{}}, param: "p", wantErr: "has no value"},
		{name: "nil value", api: &fakeSSM{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{}}}, param: "p", wantErr: "has no value"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := New(tc.api)
			require.NoError(t, err)
			_, err = client.GetParameter(context.Background(), tc.param)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestGetParameter_NotFound(t *testing.T) {
	client, err := New(&fakeSSM{err: &types.ParameterNotFound{}})
	require.NoError(t, err)

	_, err = client.GetParameter(context.Background(), "/chat/pioneer-api-key")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorContains(t, err, "/chat/pioneer-api-key")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}

func TestClientSecret_DecodesStoredToken(t *testing.T) {
	client, err := New(&fakeSSM{out: parameter(`{"token":"pk-live"}`)})
	require.NoError(t, err)

	v, err := client.Secret(context.Background(), "/chat/pioneer-api-key")
	require.NoError(t, err)
	require.Equal(t, "pk-live", v)
}

func TestSecret(t *testing.T) {
	cases := []struct {
		name    string
		getter  Getter
		want    string
		wantErr string
	}{
		{name: "json token", getter: &fakeGetter{val: `{"token":"sk-from-json"}`}, want: "sk-from-json"},
		{name: "raw value", getter: &fakeGetter{val: " pk-raw \n"}, want: "pk-raw"},
		{name: "json without token", getter: &fakeGetter{val: `{"other":"value"}`}, wantErr: "empty value"},
		{name: "malformed json", getter: &fakeGetter{val: `{"broken`}, wantErr: "unmarshal"},
		{name: "blank", getter: &fakeGetter{val: "   "}, wantErr: "empty value"},
		{name: "getter error", getter: &fakeGetter{err: errors.New("ssm unavailable")}, wantErr: "ssm unavailable"},
		{name: "nil getter", getter: nil, wantErr: "getter is nil"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Secret(context.Background(), tc.getter, "/p/key")
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, v)
		})
	}
}
