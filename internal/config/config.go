package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FailureEligibility selects which voters may claim from a failure
// distribution. The product never pinned this down; it stays a policy knob.
type FailureEligibility string

const (
	EligibleAll     FailureEligibility = "all"
	EligibleApprove FailureEligibility = "approve"
	EligibleReject  FailureEligibility = "reject"
)

// Config models hodler.yml: the governance and settlement parameters the
// engine runs with. All durations are seconds, all amounts lamports, all
// weights USD-equivalent units supplied by the holding-value oracle.
type Config struct {
	Governance struct {
		ApprovalThresholdWeight uint64 `yaml:"approval_threshold_weight"`
		VotingWindowSecs        int64  `yaml:"voting_window_secs"`
		ClaimableDelaySecs      int64  `yaml:"claimable_delay_secs"`
		ClaimFreshnessSecs      int64  `yaml:"claim_freshness_secs"`
	} `yaml:"governance"`
	Payouts struct {
		FailureEligibility FailureEligibility `yaml:"failure_eligibility"`
		VoteRewardRateBps  int                `yaml:"vote_reward_rate_bps"`
	} `yaml:"payouts"`
	Chain struct {
		RPCEndpoint     string `yaml:"rpc_endpoint"`
		WSEndpoint      string `yaml:"ws_endpoint"`
		Commitment      string `yaml:"commitment"`
		BuybackWallet   string `yaml:"buyback_wallet"`
		RewardsTreasury string `yaml:"rewards_treasury"`
	} `yaml:"chain"`
	Server struct {
		NormalizeIntervalSecs int64 `yaml:"normalize_interval_secs"`
		ReconcileIntervalSecs int64 `yaml:"reconcile_interval_secs"`
	} `yaml:"server"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Governance.ApprovalThresholdWeight == 0 {
		return fmt.Errorf("governance.approval_threshold_weight is required")
	}
	if c.Governance.VotingWindowSecs <= 0 {
		return fmt.Errorf("governance.voting_window_secs must be positive")
	}
	if c.Governance.ClaimableDelaySecs < 0 {
		return fmt.Errorf("governance.claimable_delay_secs must not be negative")
	}
	if c.Governance.ClaimFreshnessSecs <= 0 {
		return fmt.Errorf("governance.claim_freshness_secs must be positive")
	}
	switch c.Payouts.FailureEligibility {
	case EligibleAll, EligibleApprove, EligibleReject:
	default:
		return fmt.Errorf("payouts.failure_eligibility must be all, approve or reject")
	}
	if c.Payouts.VoteRewardRateBps < 0 || c.Payouts.VoteRewardRateBps > 10000 {
		return fmt.Errorf("payouts.vote_reward_rate_bps must be within [0,10000]")
	}
	return nil
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	cfg.Governance.ApprovalThresholdWeight = 1
	cfg.Governance.VotingWindowSecs = 86400
	cfg.Governance.ClaimableDelaySecs = 86400
	cfg.Governance.ClaimFreshnessSecs = 300
	cfg.Payouts.FailureEligibility = EligibleAll
	cfg.Payouts.VoteRewardRateBps = 50
	cfg.Chain.RPCEndpoint = "https://api.mainnet-beta.solana.com"
	cfg.Chain.Commitment = "confirmed"
	cfg.Server.NormalizeIntervalSecs = 60
	cfg.Server.ReconcileIntervalSecs = 300
	return &cfg
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "hodler.yml")
}

// Load reads and validates config from workspace, falling back to defaults
// when the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Absent fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
