package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RewardConfig decides what a referrer receives once a referral completes.
type RewardConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	AutoPayout  bool    `mapstructure:"autoPayout"`
	Amount      float64 `mapstructure:"amount"`
	Currency    string  `mapstructure:"currency"`
	RewardType  string  `mapstructure:"rewardType"`
	MaxAttempts int     `mapstructure:"maxAttempts"`
}

const (
	RewardTypeGiftCard      = "gift_card"
	RewardTypeDirectPayment = "direct_payment"
	RewardTypeServiceCredit = "service_credit"
)

func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		Enabled:     true,
		AutoPayout:  true,
		Amount:      50,
		Currency:    "USD",
		RewardType:  RewardTypeGiftCard,
		MaxAttempts: 5,
	}
}

type RewardConfigHolder struct {
	current atomic.Value // holds RewardConfig
}

// NewStaticRewardConfigHolder pins a reward config without watching any file.
func NewStaticRewardConfigHolder(cfg RewardConfig) *RewardConfigHolder {
	holder := &RewardConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewRewardConfigHolder() (*RewardConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("reward")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/referly")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REFERLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRewardConfig()
	v.SetDefault("reward.enabled", defaults.Enabled)
	v.SetDefault("reward.autoPayout", defaults.AutoPayout)
	v.SetDefault("reward.amount", defaults.Amount)
	v.SetDefault("reward.currency", defaults.Currency)
	v.SetDefault("reward.rewardType", defaults.RewardType)
	v.SetDefault("reward.maxAttempts", defaults.MaxAttempts)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg RewardConfig
	if err := v.UnmarshalKey("reward", &cfg); err != nil {
		return nil, err
	}
	if err := validateRewardConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticRewardConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RewardConfig
		if err := v.UnmarshalKey("reward", &updated); err != nil {
			log.Printf("[reward-config] reload failed: %v", err)
			return
		}
		if err := validateRewardConfig(updated); err != nil {
			log.Printf("[reward-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reward-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *RewardConfigHolder) Get() RewardConfig {
	return h.current.Load().(RewardConfig)
}

func validateRewardConfig(cfg RewardConfig) error {
	if cfg.Amount < 0 {
		return errors.New("reward.amount cannot be negative")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("reward.currency cannot be empty")
	}
	switch cfg.RewardType {
	case RewardTypeGiftCard, RewardTypeDirectPayment, RewardTypeServiceCredit:
	default:
		return errors.New("reward.rewardType must be gift_card, direct_payment or service_credit")
	}
	if cfg.MaxAttempts <= 0 {
		return errors.New("reward.maxAttempts must be positive")
	}
	return nil
}
