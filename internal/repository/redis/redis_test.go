package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := Connect(ctx, mr.Addr(), "")
	require.NoError(t, err)
	defer client.Close()

	client, err = Connect(ctx, "redis://"+mr.Addr()+"/0", "")
	require.NoError(t, err)
	defer client.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = Connect(ctx, addr, "")
	assert.Error(t, err)
}

func TestRoomRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := Connect(ctx, mr.Addr(), "")
	require.NoError(t, err)
	defer client.Close()

	a := NewRoomRegistry(client, time.Hour, "node-a")
	b := NewRoomRegistry(client, time.Hour, "node-b")

	ok, err := a.Reserve(ctx, "AB12CD")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Reserve(ctx, "AB12CD")
	require.NoError(t, err)
	assert.False(t, ok, "code is held by another instance")

	owner, err := b.owner(ctx, "AB12CD")
	require.NoError(t, err)
	assert.Equal(t, "node-a", owner)
	assert.Equal(t, time.Hour, mr.TTL(roomKeyPrefix+"AB12CD"))

	require.NoError(t, a.Release(ctx, "AB12CD"))
	owner, err = b.owner(ctx, "AB12CD")
	require.NoError(t, err)
	assert.Empty(t, owner)

	ok, err = b.Reserve(ctx, "AB12CD")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRoomRegistryReleaseKeepsForeignReservation(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := Connect(ctx, mr.Addr(), "")
	require.NoError(t, err)
	defer client.Close()

	a := NewRoomRegistry(client, time.Hour, "node-a")
	b := NewRoomRegistry(client, time.Hour, "node-b")

	ok, err := b.Reserve(ctx, "QR78ST")
	require.NoError(t, err)
	require.True(t, ok)

	// node-a used the code locally while the registry was unreachable and
	// releases it afterwards.
	require.NoError(t, a.Release(ctx, "QR78ST"))
	owner, err := a.owner(ctx, "QR78ST")
	require.NoError(t, err)
	assert.Equal(t, "node-b", owner)

	require.NoError(t, b.Release(ctx, "QR78ST"))
	assert.False(t, mr.Exists(roomKeyPrefix+"QR78ST"))

	require.NoError(t, a.Release(ctx, "NOTSET"), "releasing a free code is a no-op")
}

func TestRoomRegistryExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := Connect(ctx, mr.Addr(), "")
	require.NoError(t, err)
	defer client.Close()

	r := NewRoomRegistry(client, time.Minute, "node-a")
	ok, err := r.Reserve(ctx, "EF34GH")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(30 * time.Second)
	require.NoError(t, r.Refresh(ctx, "EF34GH"))
	mr.FastForward(45 * time.Second)
	assert.True(t, mr.Exists(roomKeyPrefix+"EF34GH"))

	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists(roomKeyPrefix+"EF34GH"))
}

func TestEventPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := Connect(ctx, mr.Addr(), "")
	require.NoError(t, err)
	defer client.Close()

	sub := client.Subscribe(ctx, EventChannelPrefix+"AB12CD")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewEventPublisher(client, 16, zap.NewNop())
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pub.Run(runCtx)
		close(done)
	}()

	pub.Emit("AB12CD", "match_started", map[string]any{"sessionId": "s1"})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventChannelPrefix+"AB12CD", msg.Channel)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, "match_started", env.Event)
	assert.Equal(t, "AB12CD", env.Topic)
	assert.Equal(t, map[string]any{"sessionId": "s1"}, env.Payload)

	cancel()
	<-done
}

func TestEventPublisherDropsWhenFull(t *testing.T) {
	pub := NewEventPublisher(nil, 1, zap.NewNop())

	pub.Emit("global", "room_updated", nil)
	pub.Emit("global", "room_updated", nil)
	pub.Emit("global", "room_updated", nil)

	assert.Equal(t, int64(2), pub.Dropped())
}
