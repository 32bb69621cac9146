package config

import (
	"strings"
	"testing"
)

func baseConfig() *Config {
	return &Config{
		BufferSize: 10,
		NumTiers:   3,
		MemSizes:   [3]int{10, 10, 10},
		Clients:    []ClientSpec{{Pattern: "uniform", Local: 10, Remote: 0, Pmem: 0}},
		Ratio:      0.5,
		PolicyType: "lru",
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	c := baseConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsExcessTierSizes(t *testing.T) {
	c := baseConfig()
	c.Clients = []ClientSpec{{Pattern: "uniform", Local: 20, Remote: 0, Pmem: 0}}

	err := c.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := err.Error(); !strings.Contains(got, "exceeds LOCAL limit") {
		t.Fatalf("expected error to mention 'exceeds LOCAL limit', got %q", got)
	}
}

func TestValidateRejectsUnknownPolicy(t *testing.T) {
	c := baseConfig()
	c.PolicyType = "bogus"
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for unknown policy")
	}
}

func TestValidateRejectsRemoteInTwoTierTopology(t *testing.T) {
	c := baseConfig()
	c.NumTiers = 2
	c.MemSizes = [3]int{10, 0, 10}
	c.Clients = []ClientSpec{{Pattern: "uniform", Local: 5, Remote: 5, Pmem: 0}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for REMOTE pages in a two-tier topology")
	}
}

func TestValidateRejectsBadRatio(t *testing.T) {
	c := baseConfig()
	c.Ratio = 1.5
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for out-of-range ratio")
	}
}

func TestStrategyBuildsRequestedPolicy(t *testing.T) {
	c := baseConfig()
	c.PolicyType = "hybrid"
	c.RecencyWeight = 1
	c.FrequencyWeight = 1
	s, err := c.Strategy()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatal("expected a non-nil strategy")
	}
}
