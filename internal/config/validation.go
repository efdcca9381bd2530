package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。实盘前置条件不满足时返回错误，
// 由入口以非零码退出。
func validate(c *Config) error {
	if err := c.Agent.validate(); err != nil {
		return err
	}
	if err := c.Exchange.validate(c.Agent.DryRun); err != nil {
		return err
	}
	if c.Notify.Telegram.Enabled {
		tg := c.Notify.Telegram
		if strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
			return fmt.Errorf("notify.telegram enabled but bot_token/chat_id missing")
		}
	}
	if c.Sentiment.Enabled && strings.TrimSpace(c.Sentiment.APIURL) == "" {
		return fmt.Errorf("sentiment enabled but api_url missing")
	}
	return nil
}

func (a *AgentConfig) validate() error {
	for _, coin := range a.Coins {
		if strings.TrimSpace(coin) == "" {
			return fmt.Errorf("agent.coins contains empty entry")
		}
	}
	if a.MaxAllocPct > 100 {
		return fmt.Errorf("agent.max_alloc_pct must be <= 100, got %.1f", a.MaxAllocPct)
	}
	if a.ContrarianPct > 100 {
		return fmt.Errorf("agent.contrarian_pct must be <= 100, got %.1f", a.ContrarianPct)
	}
	if a.Leverage > 50 {
		return fmt.Errorf("agent.leverage must be <= 50, got %d", a.Leverage)
	}
	return nil
}

func (e *ExchangeConfig) validate(dryRun bool) error {
	if dryRun {
		return nil
	}
	if strings.TrimSpace(e.AccountAddress) == "" {
		return fmt.Errorf("live mode requires exchange.account_address")
	}
	if strings.TrimSpace(e.ExecutorURL) == "" {
		return fmt.Errorf("live mode requires exchange.executor_url")
	}
	if strings.TrimSpace(e.ExecutorToken) == "" {
		return fmt.Errorf("live mode requires exchange.executor_token (or HYPERTRADER_EXCHANGE_EXECUTOR_TOKEN)")
	}
	return nil
}
