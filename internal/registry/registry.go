// Package registry holds the inverter register map as data: per-address
// metadata (name, unit, scaling gain, access mode) and the fixed
// name→address table the remote configuration protocol accepts. Neither
// table is a hardcoded switch — both are built from one list of register
// definitions, loaded from YAML or taken from DefaultInverterRegisters,
// and swapped atomically under a single pointer so concurrent readers
// never observe a torn table.
package registry

import (
	"os"
	"sort"
	"sync/atomic"

	"github.com/ecowatt/gateway/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	// AccessRead permits only reads of the register.
	AccessRead = Access("read")
	// AccessWrite permits only writes to the register.
	AccessWrite = Access("write")
	// AccessReadWrite permits both.
	AccessReadWrite = Access("readwrite")
)

// Access is the permission mode for a register.
type Access string

// RegisterConfig is immutable per-address metadata for one inverter
// register. The zero value is not meaningful; always construct through
// Load or NewTable.
type RegisterConfig struct {
	Address uint8
	Name    string
	Unit    string
	Gain    float32
	Access  Access
}

// Table is an immutable snapshot of the register map: the address-keyed
// metadata plus the derived name→address lookup used by the remote
// configuration protocol.
type Table struct {
	byAddress map[uint8]RegisterConfig
	byName    map[string]uint8
	addresses []uint8 // ascending, precomputed for the poll cycle's iteration order
}

// NewTable builds an immutable Table from a list of register definitions.
func NewTable(registers []RegisterConfig) *Table {
	byAddress := make(map[uint8]RegisterConfig, len(registers))
	byName := make(map[string]uint8, len(registers))
	addresses := make([]uint8, 0, len(registers))

	for _, r := range registers {
		byAddress[r.Address] = r
		byName[r.Name] = r.Address
		addresses = append(addresses, r.Address)
	}

	sort.Slice(addresses, func(i, j int) bool { return addresses[i] < addresses[j] })

	return &Table{byAddress: byAddress, byName: byName, addresses: addresses}
}

// Lookup returns the config for an address and whether it is known.
func (t *Table) Lookup(addr uint8) (RegisterConfig, bool) {
	cfg, ok := t.byAddress[addr]
	return cfg, ok
}

// Resolve maps a register name to its address.
func (t *Table) Resolve(name string) (uint8, bool) {
	addr, ok := t.byName[name]
	return addr, ok
}

// Addresses returns all known addresses in ascending order. The returned
// slice is owned by the table and must not be mutated by the caller.
func (t *Table) Addresses() []uint8 {
	return t.addresses
}

// Known reports whether addr is present in the table.
func (t *Table) Known(addr uint8) bool {
	_, ok := t.byAddress[addr]
	return ok
}

// Holder is an atomically-swappable pointer to the current Table,
// giving readers a copy-on-write snapshot: a Load never observes a table
// mid-replacement.
type Holder struct {
	v atomic.Value // holds *Table
}

// NewHolder wraps an initial table.
func NewHolder(initial *Table) *Holder {
	h := &Holder{}
	h.v.Store(initial)
	return h
}

// Load returns the current table snapshot.
func (h *Holder) Load() *Table {
	return h.v.Load().(*Table)
}

// Store atomically replaces the table snapshot.
func (h *Holder) Store(t *Table) {
	h.v.Store(t)
}

type registerFile struct {
	Registers []struct {
		Address uint8   `yaml:"address"`
		Name    string  `yaml:"name"`
		Unit    string  `yaml:"unit"`
		Gain    float32 `yaml:"gain"`
		Access  string  `yaml:"access"`
	} `yaml:"registers"`
}

// Load reads a register map from a YAML file.
func Load(path string) (*Table, error) {
	errFactory := errors.New()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	var doc registerFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	registers := make([]RegisterConfig, 0, len(doc.Registers))
	for _, r := range doc.Registers {
		access := Access(r.Access)
		if access == "" {
			access = AccessRead
		}
		registers = append(registers, RegisterConfig{
			Address: r.Address,
			Name:    r.Name,
			Unit:    r.Unit,
			Gain:    r.Gain,
			Access:  access,
		})
	}

	return NewTable(registers), nil
}

// DefaultInverterRegisters is the fixed name→address mapping from the
// remote configuration protocol, used when no register map file has been
// supplied (e.g. in tests, or a minimal first-boot config).
func DefaultInverterRegisters() []RegisterConfig {
	return []RegisterConfig{
		{Address: 0, Name: "voltage", Unit: "V", Gain: 10, Access: AccessRead},
		{Address: 1, Name: "current", Unit: "A", Gain: 10, Access: AccessRead},
		{Address: 2, Name: "frequency", Unit: "Hz", Gain: 100, Access: AccessRead},
		{Address: 3, Name: "pv1_voltage", Unit: "V", Gain: 10, Access: AccessRead},
		{Address: 4, Name: "pv2_voltage", Unit: "V", Gain: 10, Access: AccessRead},
		{Address: 5, Name: "pv1_current", Unit: "A", Gain: 10, Access: AccessRead},
		{Address: 6, Name: "pv2_current", Unit: "A", Gain: 10, Access: AccessRead},
		{Address: 7, Name: "temperature", Unit: "C", Gain: 10, Access: AccessRead},
		{Address: 8, Name: "export_power", Unit: "W", Gain: 1, Access: AccessRead},
		{Address: 9, Name: "output_power", Unit: "W", Gain: 1, Access: AccessRead},
	}
}
