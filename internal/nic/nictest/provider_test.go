package nictest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"firestige.xyz/fastdrop/internal/core"
	"firestige.xyz/fastdrop/internal/nic"
)

var _ nic.Provider = (*Provider)(nil)

func TestProviderAccounting(t *testing.T) {
	p := New()
	assert.NoError(t, p.Configure(2))
	p.Enqueue(0, []byte{1}, []byte{2}, []byte{3})
	p.Enqueue(1, []byte{4})

	burst := make([]core.Frame, 2)
	n := p.RxBurst(0, burst)
	assert.Equal(t, 2, n)
	assert.Equal(t, byte(1), burst[0].Data[0])
	assert.Equal(t, 2, p.Allocated())
	assert.Equal(t, 2, p.Outstanding())
	assert.Equal(t, 2, p.Pending())

	p.Release(burst[0])
	p.Release(burst[1])
	p.Release(burst[1])
	assert.Equal(t, 2, p.Released())
	assert.Equal(t, 1, p.DoubleReleases())
	assert.Equal(t, 0, p.Outstanding())

	n = p.RxBurst(1, burst)
	assert.Equal(t, 1, n)
	burst[0].Queue = 0
	p.Release(burst[0])
	assert.Equal(t, 1, p.WrongQueueReleases())
	assert.Equal(t, 1, p.Polls(0))
	assert.Equal(t, 1, p.Polls(1))
}

func TestProviderConfigureError(t *testing.T) {
	p := New()
	p.ConfigureErr = errors.New("no port")
	assert.Error(t, p.Configure(1))
	assert.NoError(t, p.Close())
	assert.True(t, p.Closed())
}
