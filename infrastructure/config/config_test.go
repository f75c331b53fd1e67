package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kaspanet/netnode/app/appmessage"
)

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "netnode.conf")
	err := os.WriteFile(path, []byte(content), 0600)
	if err != nil {
		t.Fatalf("Failed writing config file: %v", err)
	}
	return path
}

func TestLoadConfigRequiresPort(t *testing.T) {
	missingConfigFile := filepath.Join(t.TempDir(), "missing.conf")
	_, _, err := loadConfig([]string{"--configfile", missingConfigFile})
	if err == nil {
		t.Fatalf("expected an error when --port is missing")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	configFile := writeConfigFile(t, "[Application Options]\n"+
		"port=9000\n"+
		"externalip=10.0.0.5\n"+
		"connect=10.0.0.1\n"+
		"connect=10.0.0.2:7000\n")

	cfg, _, err := loadConfig([]string{"--configfile", configFile})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("expected port 9000 from the config file, got %d", cfg.Port)
	}
	if cfg.ListenAddress() != "0.0.0.0:9000" {
		t.Errorf("unexpected listen address %s", cfg.ListenAddress())
	}
	if cfg.ExternalAddress() != appmessage.NewNodeAddress("10.0.0.5", 9000) {
		t.Errorf("unexpected external address %s", cfg.ExternalAddress())
	}
	expectedPeers := []appmessage.NodeAddress{
		appmessage.NewNodeAddress("10.0.0.1", 9000),
		appmessage.NewNodeAddress("10.0.0.2", 7000),
	}
	if len(cfg.ConnectPeerAddresses) != len(expectedPeers) {
		t.Fatalf("expected %d connect peers, got %d", len(expectedPeers), len(cfg.ConnectPeerAddresses))
	}
	for i, peer := range expectedPeers {
		if cfg.ConnectPeerAddresses[i] != peer {
			t.Errorf("connect peer %d: got %s, want %s", i, cfg.ConnectPeerAddresses[i], peer)
		}
	}
}

func TestCommandLineOverridesConfigFile(t *testing.T) {
	configFile := writeConfigFile(t, "[Application Options]\nport=9000\nlisten=127.0.0.1\n")

	cfg, _, err := loadConfig([]string{"--configfile", configFile, "--port", "9001"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Port != 9001 {
		t.Errorf("expected the command line port to take precedence, got %d", cfg.Port)
	}
	if cfg.ListenAddress() != "127.0.0.1:9001" {
		t.Errorf("unexpected listen address %s", cfg.ListenAddress())
	}
}

func TestResolveDialers(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(flags *Flags)
		expectedErr bool
	}{
		{
			name:   "defaults",
			modify: func(flags *Flags) {},
		},
		{
			name: "proxy",
			modify: func(flags *Flags) {
				flags.Proxy = "127.0.0.1:9050"
				flags.TorIsolation = true
			},
		},
		{
			name: "noonion and onion",
			modify: func(flags *Flags) {
				flags.NoOnion = true
				flags.OnionProxy = "127.0.0.1:9050"
			},
			expectedErr: true,
		},
		{
			name: "tor isolation without a proxy",
			modify: func(flags *Flags) {
				flags.TorIsolation = true
			},
			expectedErr: true,
		},
		{
			name: "invalid proxy",
			modify: func(flags *Flags) {
				flags.Proxy = "127.0.0.1"
			},
			expectedErr: true,
		},
		{
			name: "invalid onion proxy",
			modify: func(flags *Flags) {
				flags.OnionProxy = "localhost"
			},
			expectedErr: true,
		},
	}

	for _, test := range tests {
		cfg := DefaultConfig()
		cfg.Port = 9000
		test.modify(cfg.Flags)
		err := cfg.resolve()
		if test.expectedErr {
			if err == nil {
				t.Errorf("%s: expected an error", test.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
			continue
		}
		if cfg.Dial == nil || cfg.OnionDial == nil {
			t.Errorf("%s: dial functions were not set", test.name)
		}
	}
}

func TestNoOnionDisablesOnionDial(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 9000
	cfg.NoOnion = true
	err := cfg.resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	dial := cfg.DialFor(appmessage.NewNodeAddress("abcdefghijklmnop.onion", 9000))
	_, err = dial("tcp", "abcdefghijklmnop.onion:9000", time.Second)
	if err == nil {
		t.Errorf("expected dialing an onion address to fail with --noonion")
	}
}

func TestProfilePortValidation(t *testing.T) {
	missingConfigFile := filepath.Join(t.TempDir(), "missing.conf")

	tests := []struct {
		profile       string
		expectedError bool
	}{
		{profile: "6060", expectedError: false},
		{profile: "80", expectedError: true},
		{profile: "70000", expectedError: true},
		{profile: "pprof", expectedError: true},
	}
	for _, test := range tests {
		_, _, err := loadConfig([]string{"--configfile", missingConfigFile, "--port", "9000", "--profile", test.profile})
		if test.expectedError != (err != nil) {
			t.Errorf("profile %s: expected error: %t, got: %v", test.profile, test.expectedError, err)
		}
	}
}
