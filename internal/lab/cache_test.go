package lab

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	labs     map[string]*Config
	getCalls int
	byPhone  int
}

func (f *fakeSource) Get(ctx context.Context, labID string) (*Config, error) {
	f.getCalls++
	if cfg, ok := f.labs[labID]; ok {
		return cfg, nil
	}
	return nil, ErrNotFound
}

func (f *fakeSource) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Config, error) {
	f.byPhone++
	for _, cfg := range f.labs {
		if cfg.Messaging.PhoneNumberID == phoneNumberID {
			return cfg, nil
		}
	}
	return nil, ErrNotFound
}

func testLab(id, phoneNumberID string) *Config {
	return &Config{ID: id, Name: "Lab " + id, Messaging: Messaging{PhoneNumberID: phoneNumberID, AccessToken: "tok"}}
}

func TestCachedStoreReadThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	source := &fakeSource{labs: map[string]*Config{"lab-1": testLab("lab-1", "1098765")}}
	cache := NewCachedStore(source, client, time.Minute, nil)
	ctx := context.Background()

	cfg, err := cache.Get(ctx, "lab-1")
	require.NoError(t, err)
	assert.Equal(t, "1098765", cfg.Messaging.PhoneNumberID)

	_, err = cache.Get(ctx, "lab-1")
	require.NoError(t, err)
	assert.Equal(t, 1, source.getCalls, "second read should hit redis")

	cfg, err = cache.GetByPhoneNumberID(ctx, "1098765")
	require.NoError(t, err)
	assert.Equal(t, "lab-1", cfg.ID)
	assert.Equal(t, 0, source.byPhone, "phone mapping was cached by the first load")

	mr.FastForward(2 * time.Minute)
	_, err = cache.Get(ctx, "lab-1")
	require.NoError(t, err)
	assert.Equal(t, 2, source.getCalls, "expired entry should reload")
}

func TestCachedStoreInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	lab := testLab("lab-1", "1098765")
	cache := NewCachedStore(&fakeSource{labs: map[string]*Config{"lab-1": lab}}, client, time.Minute, nil)
	ctx := context.Background()

	_, err = cache.Get(ctx, "lab-1")
	require.NoError(t, err)
	require.True(t, mr.Exists("lab:config:lab-1"))
	require.True(t, mr.Exists("lab:phone:1098765"))

	require.NoError(t, cache.Invalidate(ctx, lab))
	assert.False(t, mr.Exists("lab:config:lab-1"))
	assert.False(t, mr.Exists("lab:phone:1098765"))
}

func TestCachedStoreWithoutRedis(t *testing.T) {
	source := &fakeSource{labs: map[string]*Config{"lab-1": testLab("lab-1", "1098765")}}
	cache := NewCachedStore(source, nil, 0, nil)
	_, err := cache.Get(context.Background(), "lab-1")
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), "lab-1")
	require.NoError(t, err)
	assert.Equal(t, 2, source.getCalls)

	_, err = cache.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
