package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRedis(t *testing.T) {
	ctx := context.Background()

	client, err := ConnectRedis(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, client)

	_, err = ConnectRedis(ctx, "not a url")
	require.Error(t, err)

	mr := miniredis.RunT(t)
	client, err = ConnectRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
