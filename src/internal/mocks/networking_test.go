package mocks

import (
	"errors"
	"testing"
)

func TestMockRedirectRules_DefaultBehavior(t *testing.T) {
	mock := &MockRedirectRules{}

	if err := mock.Enable(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if !mock.Enabled() {
		t.Error("Expected rules to be enabled")
	}
	if err := mock.Disable(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if mock.Enabled() {
		t.Error("Expected rules to be disabled")
	}

	if enable, disable := mock.Calls(); enable != 1 || disable != 1 {
		t.Errorf("Expected 1 call each, got enable=%d disable=%d", enable, disable)
	}
}

func TestMockRedirectRules_CustomBehavior(t *testing.T) {
	expectedErr := errors.New("iptables failed")
	mock := &MockRedirectRules{
		EnableFunc: func() error { return expectedErr },
	}

	if err := mock.Enable(); err != expectedErr {
		t.Errorf("Expected custom error, got: %v", err)
	}
	if mock.Enabled() {
		t.Error("Expected failed Enable to leave rules disabled")
	}
}

func TestMockLinks(t *testing.T) {
	links := NewMockLinks("br0")

	if !links.Exists("br0") {
		t.Error("Expected br0 to exist")
	}
	if links.Exists("wg0") {
		t.Error("Expected wg0 not to exist")
	}

	links.Set("wg0", true)
	links.Set("br0", false)
	if links.Exists("br0") || !links.Exists("wg0") {
		t.Error("Expected Set to update the link set")
	}
}
