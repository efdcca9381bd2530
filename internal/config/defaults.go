package config

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9982"
	defaultIntervalMinutes = 15
	defaultMaxPositions    = 3
	defaultMaxAllocPct     = 20.0
	defaultLeverage        = 3
	defaultSlippageBps     = 30
	defaultCircuitBreaker  = 100.0
	defaultSessionHours    = 24.0
	defaultContrarianPct   = 10.0
	defaultSizeDecimals    = 3
	defaultExchangeREST    = "https://api.hyperliquid.xyz"
	defaultExchangeWS      = "wss://api.hyperliquid.xyz/ws"
	defaultExchangeTimeout = 10
	defaultPaperBalance    = 10000.0
	defaultSentimentTTL    = 300
	defaultMLPython        = "python3"
	defaultMLScript        = "ml/scorer.py"
	defaultMLTimeout       = 10
	defaultStorePath       = "data/hypertrader.db"
)

func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Agent.applyDefaults()
	c.Exchange.applyDefaults()
	c.Sentiment.applyDefaults()
	c.ML.applyDefaults()
	c.Store.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if a.Env == "" {
		a.Env = defaultAppEnv
	}
	if a.LogLevel == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if a.HTTPAddr == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
}

func (a *AgentConfig) applyDefaults() {
	if a.IntervalMinutes <= 0 {
		a.IntervalMinutes = defaultIntervalMinutes
	}
	if len(a.Coins) == 0 {
		a.Coins = []string{"BTC", "ETH", "SOL"}
	}
	if a.MaxPositions <= 0 {
		a.MaxPositions = defaultMaxPositions
	}
	if a.MaxAllocPct <= 0 {
		a.MaxAllocPct = defaultMaxAllocPct
	}
	if a.Leverage <= 0 {
		a.Leverage = defaultLeverage
	}
	if a.SlippageBps <= 0 {
		a.SlippageBps = defaultSlippageBps
	}
	if a.CircuitBreakerUSD <= 0 {
		a.CircuitBreakerUSD = defaultCircuitBreaker
	}
	if a.SessionHours <= 0 {
		a.SessionHours = defaultSessionHours
	}
	if a.ContrarianPct < 0 {
		a.ContrarianPct = defaultContrarianPct
	}
	if len(a.VolatileCoins) == 0 {
		a.VolatileCoins = []string{"DOGE", "WIF", "PEPE"}
	}
	if a.DefaultSizeDecimals <= 0 {
		a.DefaultSizeDecimals = defaultSizeDecimals
	}
}

func (e *ExchangeConfig) applyDefaults() {
	if e.RESTBaseURL == "" {
		e.RESTBaseURL = defaultExchangeREST
	}
	if e.WSURL == "" {
		e.WSURL = defaultExchangeWS
	}
	if e.TimeoutSeconds <= 0 {
		e.TimeoutSeconds = defaultExchangeTimeout
	}
	if e.PaperBalanceUSD <= 0 {
		e.PaperBalanceUSD = defaultPaperBalance
	}
}

func (s *SentimentConfig) applyDefaults() {
	if s.TTLSeconds <= 0 {
		s.TTLSeconds = defaultSentimentTTL
	}
}

func (m *MLConfig) applyDefaults() {
	if m.PythonBin == "" {
		m.PythonBin = defaultMLPython
	}
	if m.ScriptPath == "" {
		m.ScriptPath = defaultMLScript
	}
	if m.TimeoutSeconds <= 0 {
		m.TimeoutSeconds = defaultMLTimeout
	}
}

func (s *StoreConfig) applyDefaults() {
	if s.Path == "" {
		s.Path = defaultStorePath
	}
}
