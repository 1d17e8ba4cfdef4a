package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTable_ResolvesNameAndAddress(t *testing.T) {
	table := NewTable(DefaultInverterRegisters())

	addr, ok := table.Resolve("voltage")
	require.True(t, ok)
	assert.Equal(t, uint8(0), addr)

	cfg, ok := table.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, "voltage", cfg.Name)
	assert.Equal(t, float32(10), cfg.Gain)
}

func TestNewTable_AddressesAscending(t *testing.T) {
	table := NewTable(DefaultInverterRegisters())
	addresses := table.Addresses()

	for i := 1; i < len(addresses); i++ {
		assert.Less(t, addresses[i-1], addresses[i])
	}
}

func TestTable_UnknownAddress(t *testing.T) {
	table := NewTable(DefaultInverterRegisters())
	assert.False(t, table.Known(200))

	_, ok := table.Resolve("bogus")
	assert.False(t, ok)
}

func TestHolder_StoreIsVisibleToLoad(t *testing.T) {
	holder := NewHolder(NewTable(nil))
	assert.False(t, holder.Load().Known(0))

	holder.Store(NewTable(DefaultInverterRegisters()))
	assert.True(t, holder.Load().Known(0))
}

func TestLoad_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registers.yaml")
	contents := `
registers:
  - address: 0
    name: voltage
    unit: V
    gain: 10
    access: read
  - address: 1
    name: current
    unit: A
    gain: 10
    access: read
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	table, err := Load(path)
	require.NoError(t, err)

	addr, ok := table.Resolve("current")
	require.True(t, ok)
	assert.Equal(t, uint8(1), addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/registers.yaml")
	assert.Error(t, err)
}
