package networking

import (
	"net"
	"strings"

	"github.com/vishvananda/netlink"
)

// Mock types for testing

type mockNetlinkLink struct {
	name  string
	up    bool
	index int
}

func (m *mockNetlinkLink) Attrs() *netlink.LinkAttrs {
	flags := net.Flags(0)
	if m.up {
		flags |= net.FlagUp
	}
	return &netlink.LinkAttrs{
		Name:  m.name,
		Index: m.index,
		Flags: flags,
	}
}

func (m *mockNetlinkLink) Type() string { return "mock" }

// fakeIPTables keeps chains and rules in memory.
type fakeIPTables struct {
	chains map[string][]string
	calls  []string
	failOn string
}

func newFakeIPTables() *fakeIPTables {
	return &fakeIPTables{chains: map[string][]string{
		"nat/PREROUTING": {},
	}}
}

func key(table, chain string) string {
	return table + "/" + chain
}

func (f *fakeIPTables) record(op string) error {
	f.calls = append(f.calls, op)
	if f.failOn == op {
		return &net.OpError{Op: op}
	}
	return nil
}

func (f *fakeIPTables) ChainExists(table, chain string) (bool, error) {
	_, ok := f.chains[key(table, chain)]
	return ok, nil
}

func (f *fakeIPTables) NewChain(table, chain string) error {
	if err := f.record("NewChain"); err != nil {
		return err
	}
	if _, ok := f.chains[key(table, chain)]; !ok {
		f.chains[key(table, chain)] = []string{}
	}
	return nil
}

func (f *fakeIPTables) ClearChain(table, chain string) error {
	if err := f.record("ClearChain"); err != nil {
		return err
	}
	f.chains[key(table, chain)] = []string{}
	return nil
}

func (f *fakeIPTables) DeleteChain(table, chain string) error {
	if err := f.record("DeleteChain"); err != nil {
		return err
	}
	delete(f.chains, key(table, chain))
	return nil
}

func (f *fakeIPTables) Exists(table, chain string, rulespec ...string) (bool, error) {
	want := strings.Join(rulespec, " ")
	for _, rule := range f.chains[key(table, chain)] {
		if rule == want {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeIPTables) Append(table, chain string, rulespec ...string) error {
	if err := f.record("Append"); err != nil {
		return err
	}
	k := key(table, chain)
	f.chains[k] = append(f.chains[k], strings.Join(rulespec, " "))
	return nil
}

func (f *fakeIPTables) InsertUnique(table, chain string, pos int, rulespec ...string) error {
	if err := f.record("InsertUnique"); err != nil {
		return err
	}
	if exists, _ := f.Exists(table, chain, rulespec...); exists {
		return nil
	}
	k := key(table, chain)
	f.chains[k] = append([]string{strings.Join(rulespec, " ")}, f.chains[k]...)
	return nil
}

func (f *fakeIPTables) DeleteIfExists(table, chain string, rulespec ...string) error {
	if err := f.record("DeleteIfExists"); err != nil {
		return err
	}
	k := key(table, chain)
	if _, ok := f.chains[k]; !ok {
		return nil
	}
	want := strings.Join(rulespec, " ")
	rules := f.chains[k][:0]
	for _, rule := range f.chains[k] {
		if rule != want {
			rules = append(rules, rule)
		}
	}
	f.chains[k] = rules
	return nil
}
