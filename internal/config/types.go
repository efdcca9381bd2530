package config

import "strings"

// Config 是 hypertrader 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Agent     AgentConfig     `toml:"agent"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Sentiment SentimentConfig `toml:"sentiment"`
	ML        MLConfig        `toml:"ml"`
	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
}

// AgentConfig 对应启动命令暴露的全部交易参数。
type AgentConfig struct {
	DryRun              bool           `toml:"dry_run"`
	IntervalMinutes     int            `toml:"interval_minutes"`
	Coins               []string       `toml:"coins"`
	MaxPositions        int            `toml:"max_positions"`
	MaxAllocPct         float64        `toml:"max_alloc_pct"`
	Leverage            int            `toml:"leverage"`
	SlippageBps         int            `toml:"slippage_bps"`
	CircuitBreakerUSD   float64        `toml:"circuit_breaker_usd"`
	SessionHours        float64        `toml:"session_hours"`
	ContrarianPct       float64        `toml:"contrarian_pct"`
	VolatilityDetection bool           `toml:"volatility_detection"`
	VolatileCoins       []string       `toml:"volatile_coins"`
	SizeDecimals        map[string]int `toml:"size_decimals"`
	DefaultSizeDecimals int            `toml:"default_size_decimals"`
}

// IsVolatileCoin 判断 coin 是否属于高波动组（使用更宽的出场阈值）。
func (a AgentConfig) IsVolatileCoin(coin string) bool {
	for _, c := range a.VolatileCoins {
		if strings.EqualFold(c, coin) {
			return true
		}
	}
	return false
}

// SizeDecimalsFor 返回某币种的下单数量精度。viper 解析 map 时会把键
// 转成小写，这里按不区分大小写匹配。
func (a AgentConfig) SizeDecimalsFor(coin string) int {
	for c, d := range a.SizeDecimals {
		if strings.EqualFold(c, coin) {
			return d
		}
	}
	return a.DefaultSizeDecimals
}

// ExchangeConfig 描述 Hyperliquid 行情接入与外部执行服务。
// 下单走独立的签名执行服务（executor_url），本进程不持有钱包私钥。
type ExchangeConfig struct {
	RESTBaseURL     string  `toml:"rest_base_url"`
	WSURL           string  `toml:"ws_url"`
	AccountAddress  string  `toml:"account_address"`
	ExecutorURL     string  `toml:"executor_url"`
	ExecutorToken   string  `toml:"executor_token"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	PaperBalanceUSD float64 `toml:"paper_balance_usd"`
}

type SentimentConfig struct {
	Enabled    bool   `toml:"enabled"`
	APIURL     string `toml:"api_url"`
	APIKey     string `toml:"api_key"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// MLConfig 描述外部置信度评分器（python 子进程）。
type MLConfig struct {
	Enabled        bool   `toml:"enabled"`
	PythonBin      string `toml:"python_bin"`
	ScriptPath     string `toml:"script_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}
