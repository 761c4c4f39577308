package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReceiptSubject(t *testing.T) {
	assert.Equal(t, "battlefield.battlefield.near.receipts", ReceiptSubject("battlefield", "battlefield.near"))
}

func TestPublishWithoutConnection(t *testing.T) {
	p := &Publisher{}
	err := p.Publish(context.Background(), "x", []byte("{}"))
	require.Error(t, err)
	p.Close()
}

func TestNewPublisherUnreachable(t *testing.T) {
	_, err := NewPublisher("nats://127.0.0.1:1", nil)
	require.Error(t, err)
}

func runServer(t *testing.T) *server.Server {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	srv := natstest.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestPublishDelivers(t *testing.T) {
	srv := runServer(t)
	subject := ReceiptSubject("battlefield", "battlefield.near")

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	msgs := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(subject, msgs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, nc.Flush())

	p, err := NewPublisher(srv.ClientURL(), zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Publish(context.Background(), subject, []byte(`{"event":"receipt.committed","method":"increment"}`)))
	select {
	case m := <-msgs:
		assert.Equal(t, subject, m.Subject)
		assert.JSONEq(t, `{"event":"receipt.committed","method":"increment"}`, string(m.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("receipt event was not delivered")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, subject, []byte(`{}`)), context.Canceled)
}

func TestPublishAfterClose(t *testing.T) {
	srv := runServer(t)
	p, err := NewPublisher(srv.ClientURL(), nil)
	require.NoError(t, err)
	p.Close()

	assert.Error(t, p.Publish(context.Background(), "battlefield.x.receipts", []byte(`{}`)))
}
