package networking

import (
	"strings"
	"testing"
)

func TestRedirectManager_EnableDisable(t *testing.T) {
	ipt := newFakeIPTables()
	mgr := NewRedirectManagerWith(ipt, "KEEN_RELAY", nil, testParams(), nil)

	if len(mgr.Components()) != 3 {
		t.Fatalf("Expected chain plus 2 rules, got %d components", len(mgr.Components()))
	}

	if err := mgr.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}

	if got := ipt.chains["nat/PREROUTING"]; len(got) != 1 || got[0] != "-j KEEN_RELAY" {
		t.Errorf("Expected PREROUTING jump, got %v", got)
	}
	if got := ipt.chains["nat/KEEN_RELAY"]; len(got) != 2 {
		t.Errorf("Expected 2 rules in chain, got %v", got)
	}

	statuses, err := mgr.Check()
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	for _, s := range statuses {
		if !s.Exists || !s.OK() {
			t.Errorf("Expected %s [%s] to exist", s.Type, s.Command)
		}
	}

	// Enable is idempotent.
	if err := mgr.Enable(); err != nil {
		t.Fatalf("Second Enable failed: %v", err)
	}
	if got := ipt.chains["nat/KEEN_RELAY"]; len(got) != 2 {
		t.Errorf("Expected rules not to be duplicated, got %v", got)
	}
	if got := ipt.chains["nat/PREROUTING"]; len(got) != 1 {
		t.Errorf("Expected a single PREROUTING jump, got %v", got)
	}

	if err := mgr.Disable(); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if _, ok := ipt.chains["nat/KEEN_RELAY"]; ok {
		t.Error("Expected chain to be deleted")
	}
	if got := ipt.chains["nat/PREROUTING"]; len(got) != 0 {
		t.Errorf("Expected PREROUTING to be empty, got %v", got)
	}

	statuses, err = mgr.Check()
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	for _, s := range statuses {
		if s.Exists {
			t.Errorf("Expected %s [%s] to be gone", s.Type, s.Command)
		}
	}
}

func TestRedirectManager_DisableWithoutChain(t *testing.T) {
	ipt := newFakeIPTables()
	mgr := NewRedirectManagerWith(ipt, "KEEN_RELAY", nil, testParams(), nil)

	if err := mgr.Disable(); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	for _, call := range ipt.calls {
		if call == "ClearChain" || call == "DeleteChain" {
			t.Errorf("Unexpected %s on missing chain", call)
		}
	}
}

func TestRedirectManager_SkipsMissingInterfaces(t *testing.T) {
	ipt := newFakeIPTables()
	present := map[string]bool{"br0": true}
	mgr := NewRedirectManagerWith(ipt, "KEEN_RELAY", nil, testParams("br0", "wg9"), func(name string) bool {
		return present[name]
	})

	if err := mgr.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}

	rules := ipt.chains["nat/KEEN_RELAY"]
	if len(rules) != 2 {
		t.Fatalf("Expected 2 rules for br0, got %v", rules)
	}
	for _, r := range rules {
		if !strings.HasPrefix(r, "-i br0 ") {
			t.Errorf("Unexpected rule %q", r)
		}
	}

	statuses, err := mgr.Check()
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	for _, s := range statuses {
		if !s.OK() {
			t.Errorf("Expected %s [%s] to be in its desired state", s.Type, s.Command)
		}
	}
}

func TestRedirectManager_AppendFailure(t *testing.T) {
	ipt := newFakeIPTables()
	ipt.failOn = "Append"
	mgr := NewRedirectManagerWith(ipt, "KEEN_RELAY", nil, testParams(), nil)

	err := mgr.Enable()
	if err == nil {
		t.Fatal("Expected error but got none")
	}
	if !strings.Contains(err.Error(), "failed to add iptables rule") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestComponents_Metadata(t *testing.T) {
	ipt := newFakeIPTables()
	mgr := NewRedirectManagerWith(ipt, "KEEN_RELAY", nil, testParams("br0"), nil)
	components := mgr.Components()

	if components[0].GetType() != ComponentTypeChain {
		t.Errorf("Expected type %s, got %s", ComponentTypeChain, components[0].GetType())
	}
	if !strings.Contains(components[0].GetCommand(), "-I PREROUTING 1 -j KEEN_RELAY") {
		t.Errorf("Unexpected chain command: %s", components[0].GetCommand())
	}

	for _, c := range components[1:] {
		if c.GetType() != ComponentTypeIPTables {
			t.Errorf("Expected type %s, got %s", ComponentTypeIPTables, c.GetType())
		}
		if c.GetChain() != "KEEN_RELAY" {
			t.Errorf("Expected chain KEEN_RELAY, got %s", c.GetChain())
		}
		if !strings.Contains(c.GetDescription(), "br0") {
			t.Errorf("Description should mention br0, got: %s", c.GetDescription())
		}
		if !strings.HasPrefix(c.GetCommand(), "iptables -t nat -A KEEN_RELAY -i br0") {
			t.Errorf("Unexpected rule command: %s", c.GetCommand())
		}
	}
}
