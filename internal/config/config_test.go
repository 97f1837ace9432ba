package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/diamond"
)

var envKeys = []string{
	"FACETCTL_RPC_URL", "FACETCTL_CHAIN_ID", "FACETCTL_DEPLOYER",
	"FACETCTL_TX_TIMEOUT", "FACETCTL_POLL_INTERVAL", "FACETCTL_RPC_RATE",
	"FACETCTL_LOG_LEVEL", "FACETCTL_LOG_FORMAT", "FACETCTL_PUSHGATEWAY_URL",
	"FACETCTL_NETWORK",
}

// clearEnv unsets every FACETCTL_* variable for the test and restores them after.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		prev, had := os.LookupEnv(k)
		require.NoError(t, os.Unsetenv(k))
		k := k
		t.Cleanup(func() {
			if had {
				os.Setenv(k, prev)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.TxTimeout)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.RPCURL)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("FACETCTL_RPC_URL", "http://localhost:8545")
	t.Setenv("FACETCTL_CHAIN_ID", "31337")
	t.Setenv("FACETCTL_TX_TIMEOUT", "45s")
	t.Setenv("FACETCTL_RPC_RATE", "12.5")
	t.Setenv("FACETCTL_LOG_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.Equal(t, uint64(31337), cfg.ChainID)
	assert.Equal(t, 45*time.Second, cfg.TxTimeout)
	assert.Equal(t, 12.5, cfg.RPCRate)
	assert.Equal(t, "json", cfg.Logging().Format)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("FACETCTL_NETWORK", "from-process")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FACETCTL_RPC_URL=http://node:8545\nFACETCTL_NETWORK=from-file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://node:8545", cfg.RPCURL)
	assert.Equal(t, "from-process", cfg.Network, "process environment wins over the file")
}

func TestLoad_MissingEnvFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("FACETCTL_LOG_FORMAT", "xml")
	_, err := Load("")
	assert.ErrorContains(t, err, "FACETCTL_LOG_FORMAT")

	bad := map[string]string{
		"FACETCTL_TX_TIMEOUT": "soon",
		"FACETCTL_CHAIN_ID":   "abc",
		"FACETCTL_RPC_RATE":   "fast",
	}
	for key, value := range bad {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			cfg, err := Load("")
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

const adminArtifact = `{
  "contractName": "AdminFacet",
  "abi": [
    {"type": "function", "name": "setTreasury", "stateMutability": "nonpayable",
     "inputs": [{"name": "t", "type": "address"}], "outputs": []},
    {"type": "function", "name": "getTreasury", "stateMutability": "view",
     "inputs": [], "outputs": [{"type": "address"}]},
    {"type": "function", "name": "owner", "stateMutability": "view",
     "inputs": [], "outputs": [{"type": "address"}]},
    {"type": "function", "name": "init", "stateMutability": "nonpayable",
     "inputs": [{"name": "t", "type": "address"}], "outputs": []}
  ],
  "bytecode": "0x6080"
}`

const planYAML = `
network: sepolia
action: add
proxy:
  name: Diamond
  bytecode: "0x60aa"
exclusions:
  names: [getTreasury]
modules:
  - name: AdminFacet
    artifact: artifacts/AdminFacet.json
    initializer:
      function: init
      args: [$deployer]
    smoke:
      - function: getTreasury
  - name: PoolFacet
    functions:
      - "deposit(uint256 amount) payable"
      - "poolBalance() view returns (uint256)"
    address: "0x00000000000000000000000000000000000000b2"
cutInit:
  module: AdminFacet
  function: setTreasury
  args: [$deployer]
configure:
  - label: treasury
    module: AdminFacet
    function: setTreasury
    args: ["$module:PoolFacet"]
verify:
  pointLookups: true
  expectedFacets: 2
`

func writePlan(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "artifacts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "artifacts", "AdminFacet.json"), []byte(adminArtifact), 0o600))
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(planYAML), 0o600))
	return path
}

func TestLoadPlanFromPath_Build(t *testing.T) {
	pf, err := LoadPlanFromPath(writePlan(t))
	require.NoError(t, err)
	assert.Equal(t, "sepolia", pf.Network)

	plan, err := pf.Build()
	require.NoError(t, err)
	require.NoError(t, plan.Validate())

	assert.Equal(t, diamond.Add, plan.Action)
	assert.True(t, plan.Proxy.IsZero())
	assert.Equal(t, []byte{0x60, 0xaa}, plan.ProxyBytecode)
	assert.Equal(t, "Diamond", plan.ProxyName)
	assert.True(t, plan.Verify.PointLookups)
	assert.Equal(t, 2, plan.Verify.ExpectedFacets)

	require.Len(t, plan.Modules, 2)
	admin := plan.Modules[0]
	assert.Equal(t, "AdminFacet", admin.Descriptor.Name())
	assert.Equal(t, []byte{0x60, 0x80}, admin.Bytecode)
	require.NotNil(t, admin.Initializer)
	assert.Equal(t, "init", admin.Initializer.Function)
	require.Len(t, admin.Smoke, 1)
	_, deployed := admin.Descriptor.Address()
	assert.False(t, deployed)

	pool := plan.Modules[1]
	addr, deployed := pool.Descriptor.Address()
	require.True(t, deployed)
	assert.Equal(t, abi.BytesToAddress([]byte{0xb2}), addr)
	fn, ok := pool.Descriptor.Function("deposit")
	require.True(t, ok)
	assert.Equal(t, abi.Payable, fn.Mutability)

	require.NotNil(t, plan.CutInit)
	assert.Equal(t, "AdminFacet", plan.CutInit.Module)
	require.Len(t, plan.Configure, 1)
	assert.Equal(t, []string{"$module:PoolFacet"}, plan.Configure[0].Args)

	// owner is a default exclusion, getTreasury is added by the plan and init
	// is the reserved initializer.
	fns, err := diamond.ExtractSelectors(admin.Descriptor, plan.Policy)
	require.NoError(t, err)
	require.Len(t, fns, 1)
	assert.Equal(t, "setTreasury", fns[0].Name)
}

func TestPlan_BuildReturnsFreshDescriptors(t *testing.T) {
	pf, err := LoadPlanFromPath(writePlan(t))
	require.NoError(t, err)

	first, err := pf.Build()
	require.NoError(t, err)
	require.NoError(t, first.Modules[0].Descriptor.SetAddress(abi.BytesToAddress([]byte{1})))

	second, err := pf.Build()
	require.NoError(t, err)
	_, deployed := second.Modules[0].Descriptor.Address()
	assert.False(t, deployed)
}

func TestPlan_Policy(t *testing.T) {
	f := false
	pf := &PlanFile{Exclusions: ExclusionConfig{Default: &f, Names: []string{"skipMe"}, ExcludePure: &f}}
	policy := pf.Policy()
	assert.Equal(t, []string{"skipMe"}, policy.Names())
	assert.False(t, policy.ExcludePure)
	assert.True(t, policy.ExcludeInitFunction)

	pf = &PlanFile{}
	assert.Equal(t, diamond.DefaultExclusionPolicy().Names(), pf.Policy().Names())
}

func TestParsePlan_Errors(t *testing.T) {
	cases := map[string]string{
		"malformed":    "modules: [",
		"no modules":   "action: add\n",
		"nameless":     "modules:\n  - functions: [\"a()\"]\n",
		"no interface": "modules:\n  - name: Empty\n",
		"duplicate":    "modules:\n  - name: A\n    functions: [\"a()\"]\n  - name: A\n    functions: [\"b()\"]\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlan([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestPlan_BuildErrors(t *testing.T) {
	cases := map[string]string{
		"bad action":    "action: merge\nmodules:\n  - name: A\n    functions: [\"a()\"]\n",
		"bad signature": "modules:\n  - name: A\n    functions: [\"a(\"]\n",
		"bad address":   "modules:\n  - name: A\n    functions: [\"a()\"]\n    address: nope\n",
		"bad proxy":     "proxy:\n  address: 0x12\nmodules:\n  - name: A\n    functions: [\"a()\"]\n",
		"missing file":  "modules:\n  - name: A\n    artifact: missing.json\n",
		"dup function":  "modules:\n  - name: A\n    functions: [\"a()\", \"a(uint256)\"]\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			pf, err := ParsePlan([]byte(src))
			require.NoError(t, err)
			_, err = pf.Build()
			assert.Error(t, err)
		})
	}
}

func TestLoadPlanFromPath_Missing(t *testing.T) {
	_, err := LoadPlanFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read plan")
}
