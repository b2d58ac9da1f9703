package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/pushcast/internal/notification"
	"github.com/shaharia-lab/pushcast/internal/sanitize"
	"github.com/shaharia-lab/pushcast/internal/service"
	"github.com/shaharia-lab/pushcast/internal/storage"
	storagemocks "github.com/shaharia-lab/pushcast/internal/storage/mocks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func subPayload(endpoint, key string) json.RawMessage {
	return json.RawMessage(`{"endpoint":"` + endpoint + `","keys":{"p256dh":"` + key + `","auth":"a"}}`)
}

func newTestSubscriptionService(t *testing.T) (service.SubscriptionService, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return service.NewSubscriptionService(store, sanitize.NewWordFilter(nil), discardLogger()), store
}

func TestRegister_AssignsID(t *testing.T) {
	svc, store := newTestSubscriptionService(t)

	id, err := svc.Register(context.Background(), "https://push.example.com/e1", subPayload("e1", "k1"), "  Alice ")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://push.example.com/e1", got.Endpoint)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.JSONEq(t, string(subPayload("e1", "k1")), string(got.Payload))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRegister_ReplacesSameEndpoint(t *testing.T) {
	svc, _ := newTestSubscriptionService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, "e1", subPayload("e1", "old"), "Phone")
	require.NoError(t, err)
	second, err := svc.Register(ctx, "e1", subPayload("e1", "new"), "Phone")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	subs, err := svc.ResolveTargets(ctx, notification.TargetAll)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, second, subs[0].ID)
	assert.Contains(t, string(subs[0].Payload), "new")

	old, err := svc.ResolveTargets(ctx, first)
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		payload  json.RawMessage
		field    string
	}{
		{name: "empty endpoint", endpoint: "", payload: subPayload("e", "k"), field: "endpoint"},
		{name: "blank endpoint", endpoint: "   ", payload: subPayload("e", "k"), field: "endpoint"},
		{name: "missing payload", endpoint: "e1", payload: nil, field: "subscription"},
		{name: "invalid payload", endpoint: "e1", payload: json.RawMessage(`{"endpoint":`), field: "subscription"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestSubscriptionService(t)
			_, err := svc.Register(context.Background(), tt.endpoint, tt.payload, "x")

			var ve *service.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)

			subs, _ := store.List(context.Background())
			assert.Empty(t, subs)
		})
	}
}

func TestRegister_SanitizesDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		cleaner sanitize.Cleaner
		input   string
		want    string
	}{
		{name: "masks profanity", cleaner: sanitize.NewWordFilter(nil), input: "damn phone", want: "**** phone"},
		{name: "empty stays empty", cleaner: sanitize.NewWordFilter(nil), input: "   ", want: ""},
		{
			name: "sanitizer failure keeps raw text",
			cleaner: sanitize.CleanerFunc(func(context.Context, string) (string, error) {
				return "", errors.New("unavailable")
			}),
			input: " damn phone ",
			want:  "damn phone",
		},
		{name: "truncated", cleaner: nil, input: strings.Repeat("é", 80), want: strings.Repeat("é", 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			svc := service.NewSubscriptionService(store, tt.cleaner, discardLogger())

			id, err := svc.Register(context.Background(), "e1", subPayload("e1", "k"), tt.input)
			require.NoError(t, err)

			recipients, err := svc.ListAll(context.Background())
			require.NoError(t, err)
			require.Len(t, recipients, 1)
			assert.Equal(t, service.Recipient{ID: id, Name: tt.want}, recipients[0])
		})
	}
}

func TestUnregister(t *testing.T) {
	svc, _ := newTestSubscriptionService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "e1", subPayload("e1", "k"), "A")
	require.NoError(t, err)

	require.NoError(t, svc.Unregister(ctx, "e1"))
	require.NoError(t, svc.Unregister(ctx, "e1"), "second unregister is a no-op")
	require.NoError(t, svc.Unregister(ctx, "never-registered"))

	recipients, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, recipients)

	var ve *service.ValidationError
	assert.ErrorAs(t, svc.Unregister(ctx, ""), &ve)
}

func TestResolveTargets(t *testing.T) {
	svc, _ := newTestSubscriptionService(t)
	ctx := context.Background()

	idA, err := svc.Register(ctx, "e1", subPayload("e1", "k"), "A")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "e2", subPayload("e2", "k"), "B")
	require.NoError(t, err)

	all, err := svc.ResolveTargets(ctx, notification.TargetAll)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	empty, err := svc.ResolveTargets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, empty, 2)

	one, err := svc.ResolveTargets(ctx, idA)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "e1", one[0].Endpoint)

	none, err := svc.ResolveTargets(ctx, "unknown-id")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestListAll_HidesPayload(t *testing.T) {
	svc, _ := newTestSubscriptionService(t)
	_, err := svc.Register(context.Background(), "https://push.example.com/abc", subPayload("abc", "secret-key"), "A")
	require.NoError(t, err)

	recipients, err := svc.ListAll(context.Background())
	require.NoError(t, err)

	raw, err := json.Marshal(recipients)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-key")
	assert.NotContains(t, string(raw), "push.example.com")
}

func TestRemoveByEndpoint(t *testing.T) {
	svc, _ := newTestSubscriptionService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "e1", subPayload("e1", "k"), "A")
	require.NoError(t, err)
	require.NoError(t, svc.RemoveByEndpoint(ctx, "e1"))
	require.NoError(t, svc.RemoveByEndpoint(ctx, "e1"))

	subs, err := svc.ResolveTargets(ctx, notification.TargetAll)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubscriptionService_StoreErrors(t *testing.T) {
	cause := errors.New("connection refused")
	store := new(storagemocks.MockSubscriptionStore)
	store.On("Upsert", mock.Anything, mock.Anything).Return(cause)
	store.On("DeleteByEndpoint", mock.Anything, mock.Anything).Return(cause)
	store.On("List", mock.Anything).Return(nil, cause)
	store.On("Get", mock.Anything, mock.Anything).Return(nil, cause)

	svc := service.NewSubscriptionService(store, nil, discardLogger())
	ctx := context.Background()

	_, err := svc.Register(ctx, "e1", subPayload("e1", "k"), "")
	assertStoreError(t, err, cause)
	assertStoreError(t, svc.Unregister(ctx, "e1"), cause)
	assertStoreError(t, svc.RemoveByEndpoint(ctx, "e1"), cause)

	_, err = svc.ListAll(ctx)
	assertStoreError(t, err, cause)
	_, err = svc.ResolveTargets(ctx, notification.TargetAll)
	assertStoreError(t, err, cause)
	_, err = svc.ResolveTargets(ctx, "some-id")
	assertStoreError(t, err, cause)

	store.AssertExpectations(t)
}

func assertStoreError(t *testing.T, err error, cause error) {
	t.Helper()
	var se *service.StoreError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, cause)
}
