package tftpclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConnector struct {
	connectAddr string
	gotFile     string
	putFile     string
	timeout     uint
	blksize     uint16
	trace       bool
	failNext    error
}

func (f *fakeConnector) Connect(addr string) error {
	f.connectAddr = addr

	return f.failNext
}

func (f *fakeConnector) Get(_ context.Context, filename string) error {
	f.gotFile = filename

	return f.failNext
}

func (f *fakeConnector) Put(_ context.Context, filename string) error {
	f.putFile = filename

	return f.failNext
}

func (f *fakeConnector) SetTimeout(timeout uint) { f.timeout = timeout }
func (f *fakeConnector) SetBlksize(b uint16)     { f.blksize = b }
func (f *fakeConnector) SetTrace(on bool)        { f.trace = on }

func TestEvaluator_Connect(t *testing.T) {
	fc := &fakeConnector{}
	e := newEvaluator(nil, fc)

	done, err := e.evaluate(context.Background(), "connect localhost 6969")
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, "localhost:6969", fc.connectAddr)
}

func TestEvaluator_GetAndPut(t *testing.T) {
	fc := &fakeConnector{}
	e := newEvaluator(nil, fc)

	_, err := e.evaluate(context.Background(), "get remote.bin")
	require.NoError(t, err)
	require.Equal(t, "remote.bin", fc.gotFile)

	_, err = e.evaluate(context.Background(), "put local.bin")
	require.NoError(t, err)
	require.Equal(t, "local.bin", fc.putFile)
}

func TestEvaluator_TimeoutAndBlksize(t *testing.T) {
	fc := &fakeConnector{}
	e := newEvaluator(nil, fc)

	_, err := e.evaluate(context.Background(), "timeout 10")
	require.NoError(t, err)
	require.Equal(t, uint(10), fc.timeout)

	_, err = e.evaluate(context.Background(), "blksize 1024")
	require.NoError(t, err)
	require.Equal(t, uint16(1024), fc.blksize)
}

func TestEvaluator_Trace(t *testing.T) {
	fc := &fakeConnector{}
	e := newEvaluator(nil, fc)

	_, err := e.evaluate(context.Background(), "trace")
	require.NoError(t, err)
	require.True(t, fc.trace)

	_, err = e.evaluate(context.Background(), "trace")
	require.NoError(t, err)
	require.False(t, fc.trace)
}

func TestEvaluator_Quit(t *testing.T) {
	fc := &fakeConnector{}
	e := newEvaluator(nil, fc)

	done, err := e.evaluate(context.Background(), "quit")
	require.NoError(t, err)
	require.True(t, done)
}

func TestEvaluator_UnknownCommand(t *testing.T) {
	fc := &fakeConnector{}
	e := newEvaluator(nil, fc)

	_, err := e.evaluate(context.Background(), "frobnicate")
	require.Error(t, err)
}
