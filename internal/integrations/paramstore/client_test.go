package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
}

func (f *fakeAPI) GetParameter(_ context.Context, _ *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("/ambubot/llmproxy-token"), Value: strPtr(`{"token":"abc"}`),
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "/ambubot/llmproxy-token")
	require.NoError(t, err)
	require.Equal(t, `{"token":"abc"}`, v)
}

func TestGetParameter_HappyPath_SecureString(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("/ambubot/llmproxy-token"), Value: strPtr(`{"token":"abc"}`), Type: types.ParameterTypeSecureString,
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "/ambubot/llmproxy-token")
	require.NoError(t, err)
	require.Equal(t, `{"token":"abc"}`, v)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("/ambubot/llmproxy-token"), Value: nil}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "/ambubot/llmproxy-token")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "/ambubot/llmproxy-token")
	require.Error(t, err)
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "/ambubot/llmproxy-token")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	api := &fakeAPI{}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

type fakeGetter struct {
	val    string
	err    error
	calls  int
	ctxErr error
}

func (f *fakeGetter) GetParameter(ctx context.Context, _ string) (string, error) {
	f.calls++
	f.ctxErr = ctx.Err()
	return f.val, f.err
}

func TestTokenSource_FetchedOnce(t *testing.T) {
	g := &fakeGetter{val: `{"token":"key-from-ssm"}`}
	src, err := NewTokenSource(g, "/ambubot/llmproxy-token")
	require.NoError(t, err)

	key, err := src.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "key-from-ssm", key)

	_, _ = src.APIKey(context.Background())
	_, _ = src.APIKey(context.Background())
	require.Equal(t, 1, g.calls, "SSM must only be called once per process lifetime")
}

func TestTokenSource_Errors(t *testing.T) {
	cases := []struct {
		name string
		g    *fakeGetter
		want string
	}{
		{name: "missing token field", g: &fakeGetter{val: `{"other":"value"}`}, want: "API token is empty"},
		{name: "malformed json", g: &fakeGetter{val: `{"broken`}, want: "unmarshal"},
		{name: "getter error", g: &fakeGetter{err: errors.New("ssm unavailable")}, want: "ssm unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, err := NewTokenSource(tc.g, "/ambubot/llmproxy-token")
			require.NoError(t, err)
			_, err = src.APIKey(context.Background())
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestTokenSource_RetriesAfterFailure(t *testing.T) {
	g := &fakeGetter{err: errors.New("ThrottlingException")}
	src, err := NewTokenSource(g, "/ambubot/llmproxy-token")
	require.NoError(t, err)

	_, err = src.APIKey(context.Background())
	require.ErrorContains(t, err, "ThrottlingException")

	g.err = nil
	g.val = `{"token":"key-from-ssm"}`
	key, err := src.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "key-from-ssm", key)
	require.Equal(t, 2, g.calls)
}

func TestTokenSource_IgnoresCallerCancellation(t *testing.T) {
	g := &fakeGetter{val: `{"token":"key-from-ssm"}`}
	src, err := NewTokenSource(g, "/ambubot/llmproxy-token")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	key, err := src.APIKey(ctx)
	require.NoError(t, err)
	require.Equal(t, "key-from-ssm", key)
	require.NoError(t, g.ctxErr)
}

func TestNewTokenSource_Validates(t *testing.T) {
	_, err := NewTokenSource(nil, "/p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")

	_, err = NewTokenSource(&fakeGetter{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}
