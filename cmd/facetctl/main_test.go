package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/chain"
	"github.com/R3E-Network/facetctl/internal/manifest"
	"github.com/R3E-Network/facetctl/internal/testutil"
	"github.com/R3E-Network/facetctl/internal/upgrade"
)

const simulatedPlan = `
action: add
proxy:
  bytecode: "0x6080"
modules:
  - name: AdminFacet
    bytecode: "0x01"
    functions:
      - "setTreasury(address)"
      - "getTreasury() view returns (address)"
      - "owner() view returns (address)"
    smoke:
      - label: treasury
        function: getTreasury
  - name: RegistrationFacet
    bytecode: "0x02"
    functions:
      - "register(address referrer)"
      - "setTreasury(address)"
configure:
  - module: AdminFacet
    function: setTreasury
    args: ["$module:RegistrationFacet"]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// isolate unsets the FACETCTL_* variables a test depends on and restores them
// afterwards.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{"FACETCTL_RPC_URL", "FACETCTL_DEPLOYER", "FACETCTL_PUSHGATEWAY_URL", "FACETCTL_NETWORK", "FACETCTL_CHAIN_ID", "FACETCTL_LOG_FORMAT"} {
		prev, had := os.LookupEnv(k)
		require.NoError(t, os.Unsetenv(k))
		k := k
		t.Cleanup(func() {
			if had {
				os.Setenv(k, prev)
			}
		})
	}
}

// execute runs facetctl with args and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env"), "--log-level", "error"}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCut_Simulate(t *testing.T) {
	isolate(t)
	plan := writeFile(t, "plan.yaml", simulatedPlan)

	stdout, stderr, err := execute(t, "cut", "--plan", plan, "--simulate")
	require.NoError(t, err, stderr)

	m, err := manifest.Parse([]byte(stdout), "manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "simulated", m.Network)
	assert.Len(t, m.Modules, 2)
	assert.Len(t, m.FacetAddressList, 2)
	require.Len(t, m.Cut, 2)
	assert.Len(t, m.Cut[1].Selectors, 1, "setTreasury is owned by AdminFacet")
	require.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], "already owned by AdminFacet")
	assert.Contains(t, stderr, "upgraded")
}

func TestCut_SimulateWritesYAML(t *testing.T) {
	isolate(t)
	plan := writeFile(t, "plan.yaml", simulatedPlan)
	out := filepath.Join(t.TempDir(), "out", "manifest.yaml")

	_, stderr, err := execute(t, "cut", "--plan", plan, "--simulate", "--out", out)
	require.NoError(t, err, stderr)

	m, err := manifest.Load(out)
	require.NoError(t, err)
	assert.False(t, m.ProxyAddress.IsZero())
	assert.Contains(t, stderr, "manifest written to")
}

func TestCut_FatalFailure(t *testing.T) {
	isolate(t)
	plan := writeFile(t, "plan.yaml", `
proxy:
  bytecode: "0x6080"
modules:
  - name: Orphan
    functions: ["ping()"]
`)
	stdout, stderr, err := execute(t, "cut", "--plan", plan, "--simulate")
	require.Error(t, err)
	assert.ErrorIs(t, err, upgrade.ErrInvalidPlan)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "upgrade failed")
}

func TestCut_RequiresNodeWithoutSimulate(t *testing.T) {
	isolate(t)
	plan := writeFile(t, "plan.yaml", simulatedPlan)
	_, _, err := execute(t, "cut", "--plan", plan)
	assert.ErrorContains(t, err, "FACETCTL_RPC_URL")
}

func TestCut_PushesMetrics(t *testing.T) {
	isolate(t)
	var pushes atomic.Int32
	gateway := testutil.NewHTTPTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	t.Setenv("FACETCTL_PUSHGATEWAY_URL", gateway.URL)

	plan := writeFile(t, "plan.yaml", simulatedPlan)
	_, stderr, err := execute(t, "cut", "--plan", plan, "--simulate")
	require.NoError(t, err, stderr)
	assert.Equal(t, int32(1), pushes.Load())
}

func TestSelectors_JSON(t *testing.T) {
	isolate(t)
	plan := writeFile(t, "plan.yaml", simulatedPlan)

	stdout, stderr, err := execute(t, "selectors", "--plan", plan, "--json")
	require.NoError(t, err, stderr)

	var entries []selectorEntry
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	// owner is excluded by the default policy.
	require.Len(t, entries, 4)
	assert.Equal(t, "setTreasury(address)", entries[0].Signature)
	assert.Equal(t, abi.ComputeSelector("setTreasury(address)").String(), entries[0].Selector)
	assert.True(t, entries[0].Routed)
	assert.Equal(t, "RegistrationFacet", entries[3].Module)
	assert.False(t, entries[3].Routed)
}

func TestSelectors_Table(t *testing.T) {
	isolate(t)
	plan := writeFile(t, "plan.yaml", simulatedPlan)

	stdout, stderr, err := execute(t, "selectors", "--plan", plan)
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "register(address)")
	assert.Contains(t, stdout, "dropped")
	assert.Contains(t, stderr, "1 collisions")
}

func TestVerify_AgainstNode(t *testing.T) {
	isolate(t)
	facet := abi.BytesToAddress([]byte{0xb2})
	node, server := testutil.NewRPCNode(t)
	node.Handle("eth_accounts", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return []string{"0x00000000000000000000000000000000000000d1"}, nil
	})
	node.Handle("eth_call", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return chain.EncodeBytes(abi.Pack(abi.ArrayValue(abi.AddressValue(facet)))), nil
	})
	t.Setenv("FACETCTL_RPC_URL", server.URL)
	t.Setenv("FACETCTL_CHAIN_ID", "31337")

	plan := writeFile(t, "plan.yaml", `
proxy:
  address: "0x00000000000000000000000000000000000000a1"
modules:
  - name: PingFacet
    address: "0x00000000000000000000000000000000000000b2"
    functions: ["ping()"]
`)
	stdout, stderr, err := execute(t, "verify", "--plan", plan)
	require.NoError(t, err, stderr)

	var v upgrade.Verification
	require.NoError(t, json.Unmarshal([]byte(stdout), &v))
	assert.Equal(t, []abi.Address{facet}, v.FacetAddresses)
	assert.Empty(t, v.Warnings)
	assert.Contains(t, stderr, "matches the plan")
	assert.Contains(t, node.Calls(), "eth_call")
}

func TestVerify_RequiresNode(t *testing.T) {
	isolate(t)
	plan := writeFile(t, "plan.yaml", simulatedPlan)
	_, _, err := execute(t, "verify", "--plan", plan, "--proxy", "0x00000000000000000000000000000000000000a1")
	assert.ErrorContains(t, err, "FACETCTL_RPC_URL")
}

func TestRoot_RejectsBadLogFormat(t *testing.T) {
	isolate(t)
	plan := writeFile(t, "plan.yaml", simulatedPlan)
	_, _, err := execute(t, "selectors", "--plan", plan, "--log-format", "xml")
	assert.Error(t, err)
}
