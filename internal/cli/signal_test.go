package cli

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterrupt_FirstSignalCancels(t *testing.T) {
	forced := make(chan os.Signal, 1)
	i := newInterrupt(context.Background(), func(sig os.Signal) { forced <- sig })
	go i.loop()
	defer i.Stop()

	i.signals <- syscall.SIGTERM
	select {
	case <-i.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
	assert.Equal(t, syscall.SIGTERM, i.Signal())

	i.signals <- os.Interrupt
	select {
	case sig := <-forced:
		assert.Equal(t, os.Interrupt, sig)
	case <-time.After(time.Second):
		t.Fatal("second signal not forwarded")
	}
}

func TestInterrupt_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	i := newInterrupt(parent, nil)
	go i.loop()
	defer i.Stop()

	cancel()
	<-i.Done()
	assert.Nil(t, i.Signal())
}

func TestInterrupt_StopIsIdempotent(t *testing.T) {
	i := NotifyInterrupt(context.Background(), nil)
	i.Stop()
	i.Stop()
	assert.Error(t, i.Err())
	assert.Nil(t, i.Signal())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 130, ExitCode(syscall.SIGINT))
	assert.Equal(t, 143, ExitCode(syscall.SIGTERM))
}
