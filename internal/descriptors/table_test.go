package descriptors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisionEmptyFilesYieldsEmptyTable(t *testing.T) {
	table, names, err := Provision(nil, Certificate{})
	require.NoError(t, err)
	assert.Empty(t, table)
	assert.Empty(t, names)
}

func TestProvisionPreservesSlotOrderAndNames(t *testing.T) {
	slots := []Slot{
		{Name: "stdin", Kind: KindStdin},
		{Name: "stdout", Kind: KindStdout},
		{Name: "sink", Kind: KindNull},
	}
	table, names, err := Provision(slots, Certificate{})
	require.NoError(t, err)
	require.Len(t, table, 3)
	assert.Equal(t, []string{"stdin", "stdout", "sink"}, names)
	assert.Len(t, names, len(table), "FD_NAMES must have exactly one entry per descriptor")
}

func TestProvisionAcceptsPlainListenSlot(t *testing.T) {
	slots := []Slot{{Name: "net", Kind: KindListen, Addr: "127.0.0.1:0", TLS: false}}
	table, names, err := Provision(slots, Certificate{})
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, []string{"net"}, names)
	assert.NoError(t, table[0].Close())
}

func TestProvisionFailureReturnsNoTable(t *testing.T) {
	slots := []Slot{
		{Name: "ok", Kind: KindNull},
		{Name: "bad", Kind: Kind(99)},
	}
	table, names, err := Provision(slots, Certificate{})
	assert.Error(t, err)
	assert.Nil(t, table)
	assert.Nil(t, names)
}
