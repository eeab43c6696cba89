package rpc

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlomekfs/zfsd/internal/codec"
	"github.com/zlomekfs/zfsd/internal/zfserr"
)

func echoHandler(ctx context.Context, fn codec.Function, body []byte) (int32, []byte, error) {
	if fn == codec.FuncPing {
		return int32(zfserr.OK), body, nil
	}
	return 0, nil, zfserr.New("rpc_test: unknown", zfserr.UnknownFunction)
}

func TestCallRoundTrip(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	client := New(c1, func(ctx context.Context, fn codec.Function, body []byte) (int32, []byte, error) {
		t.Fatal("client should not receive requests")
		return 0, nil, nil
	})
	server := New(c2, echoHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	status, reply, err := client.Call(ctx, codec.FuncPing, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, int32(zfserr.OK), status)
	assert.Equal(t, []byte("payload"), reply)
}

func TestCallSurfacesHandlerError(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	client := New(c1, nil)
	server := New(c2, echoHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	status, _, err := client.Call(ctx, codec.FuncClose, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(zfserr.UnknownFunction), status)
}

func TestCallTimesOutWhenPeerSilent(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	client := New(c1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	// net.Pipe is unbuffered, so c2 must be drained for the request write to
	// complete; the peer reads but never replies. Force a tiny timeout for the
	// test via context.
	go io.Copy(io.Discard, c2)
	callCtx, cancelCall := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancelCall()

	_, _, err := client.Call(callCtx, codec.FuncPing, nil)
	assert.Error(t, err)
}

func TestSendOnewayDeliversWithoutReply(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	received := make(chan codec.Function, 1)
	server := New(c2, func(ctx context.Context, fn codec.Function, body []byte) (int32, []byte, error) {
		received <- fn
		return 0, nil, nil
	})
	client := New(c1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	require.NoError(t, client.SendOneway(codec.FuncRereadConfig, nil))

	select {
	case fn := <-received:
		assert.Equal(t, codec.FuncRereadConfig, fn)
	case <-time.After(time.Second):
		t.Fatal("oneway not delivered")
	}
}
