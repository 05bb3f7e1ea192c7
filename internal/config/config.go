package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	Listener   ListenerConfig   `yaml:"listener"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Crypto     CryptoConfig     `yaml:"crypto"`
	OTP        OTPConfig        `yaml:"otp"`
	CORS       CORSConfig       `yaml:"cors"`
	RateLimit  RateLimitConfig  `yaml:"rateLimit"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// BlockchainConfig target chain and verifier contract configuration
type BlockchainConfig struct {
	RPCEndpoint      string `yaml:"rpcEndpoint"`      // HTTP JSON-RPC endpoint
	WSEndpoint       string `yaml:"wsEndpoint"`       // websocket endpoint for log subscription
	ChainID          int64  `yaml:"chainId"`          // chain id for transaction signing
	VerifierContract string `yaml:"verifierContract"` // verifier contract address
	PrivateKey       string `yaml:"privateKey"`       // oracle signing key (hex, no 0x prefix)
	GasLimit         uint64 `yaml:"gasLimit"`         // fixed gas limit per fulfillment
	MaxWriteAttempts int    `yaml:"maxWriteAttempts"` // chain write retry budget
}

// ListenerConfig event source configuration. Type "subscribe" consumes the
// chain's log stream directly; type "nats" consumes decoded events published
// by an external block scanner.
type ListenerConfig struct {
	Type string     `yaml:"type"`
	NATS NATSConfig `yaml:"nats"`
}

// NATSConfig NATS event source configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Subject       string `yaml:"subject"`
	Timeout       int    `yaml:"timeout"`       // connect timeout (seconds)
	ReconnectWait int    `yaml:"reconnectWait"` // seconds between reconnect attempts
}

// ProcessorConfig request processor and work queue tuning
type ProcessorConfig struct {
	Workers                int `yaml:"workers"`                // work queue concurrency
	SubmissionAttempts     int `yaml:"submissionAttempts"`     // inline submission poll budget
	SubmissionDelaySeconds int `yaml:"submissionDelaySeconds"` // fixed delay between polls
	RequeueAttempts        int `yaml:"requeueAttempts"`        // outer requeue budget
}

// CryptoConfig key material configuration
type CryptoConfig struct {
	MasterKey        string `yaml:"masterKey"`        // 32-byte hex seed encryption key
	MasterPassphrase string `yaml:"masterPassphrase"` // scrypt passphrase (used when masterKey empty)
	MasterSalt       string `yaml:"masterSalt"`       // scrypt salt for the passphrase
	APIHMACKey       string `yaml:"apiHmacKey"`       // shared key for ingestion body signatures
	JWTSecret        string `yaml:"jwtSecret"`        // operator JWT signing secret
}

// OTPConfig code engine selection. "trap" is the wall-clock trap-aware
// algorithm; "rotation" is the block-rotation contract variant. The two are
// not interchangeable and must match the deployed verifier contract.
type OTPConfig struct {
	Algorithm string `yaml:"algorithm"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// RateLimitConfig per-IP rate limiting for the public endpoints
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	Burst             int `yaml:"burst"`
}

var AppConfig *Config

// LoadConfig loads the yaml configuration file, applies environment variable
// overrides and fills defaults. A missing file is not an error when the
// required values arrive via environment.
func LoadConfig(configPath string) error {
	// Optional .env for local development
	_ = godotenv.Load()

	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			fmt.Printf("🔧 Using local configuration file: config.local.yaml\n")
		}
	}

	var config Config
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return err
	}

	AppConfig = &config
	return nil
}

// overrideFromEnv applies environment variable overrides
func overrideFromEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if rpc := os.Getenv("PROVIDER_URL"); rpc != "" {
		config.Blockchain.RPCEndpoint = rpc
	}
	if ws := os.Getenv("PROVIDER_WS_URL"); ws != "" {
		config.Blockchain.WSEndpoint = ws
	}
	if chainID := os.Getenv("CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseInt(chainID, 10, 64); err == nil {
			config.Blockchain.ChainID = id
		}
	}
	if verifier := os.Getenv("VERIFIER_CONTRACT_ADDRESS"); verifier != "" {
		config.Blockchain.VerifierContract = verifier
	}
	if key := os.Getenv("ORACLE_PRIVATE_KEY"); key != "" {
		config.Blockchain.PrivateKey = key
	}
	if gasLimit := os.Getenv("GAS_LIMIT"); gasLimit != "" {
		if limit, err := strconv.ParseUint(gasLimit, 10, 64); err == nil {
			config.Blockchain.GasLimit = limit
		}
	}

	if listenerType := os.Getenv("LISTENER_TYPE"); listenerType != "" {
		config.Listener.Type = listenerType
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.Listener.NATS.URL = natsURL
	}
	if natsSubject := os.Getenv("NATS_SUBJECT"); natsSubject != "" {
		config.Listener.NATS.Subject = natsSubject
	}

	if masterKey := os.Getenv("MASTER_ENC_KEY"); masterKey != "" {
		config.Crypto.MasterKey = masterKey
	}
	if passphrase := os.Getenv("MASTER_ENC_PASSPHRASE"); passphrase != "" {
		config.Crypto.MasterPassphrase = passphrase
	}
	if salt := os.Getenv("MASTER_ENC_SALT"); salt != "" {
		config.Crypto.MasterSalt = salt
	}
	if hmacKey := os.Getenv("API_HMAC_KEY"); hmacKey != "" {
		config.Crypto.APIHMACKey = hmacKey
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		config.Crypto.JWTSecret = jwtSecret
	}

	if algorithm := os.Getenv("OTP_ALGORITHM"); algorithm != "" {
		config.OTP.Algorithm = algorithm
	}
}

// applyDefaults fills unset values with the deployment defaults
func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8090
	}
	if config.Database.Driver == "" {
		config.Database.Driver = "postgres"
	}
	if config.Blockchain.GasLimit == 0 {
		config.Blockchain.GasLimit = 300000
	}
	if config.Blockchain.MaxWriteAttempts == 0 {
		config.Blockchain.MaxWriteAttempts = 4
	}
	if config.Listener.Type == "" {
		config.Listener.Type = "subscribe"
	}
	if config.Listener.NATS.Timeout == 0 {
		config.Listener.NATS.Timeout = 10
	}
	if config.Listener.NATS.ReconnectWait == 0 {
		config.Listener.NATS.ReconnectWait = 5
	}
	if config.Processor.Workers == 0 {
		config.Processor.Workers = 3
	}
	if config.Processor.SubmissionAttempts == 0 {
		config.Processor.SubmissionAttempts = 10
	}
	if config.Processor.SubmissionDelaySeconds == 0 {
		config.Processor.SubmissionDelaySeconds = 2
	}
	if config.Processor.RequeueAttempts == 0 {
		config.Processor.RequeueAttempts = 3
	}
	if config.OTP.Algorithm == "" {
		config.OTP.Algorithm = "trap"
	}
	if config.RateLimit.RequestsPerMinute == 0 {
		config.RateLimit.RequestsPerMinute = 120
	}
	if config.RateLimit.Burst == 0 {
		config.RateLimit.Burst = 20
	}
}

// validate checks the values that have no usable default
func validate(config *Config) error {
	if config.Crypto.MasterKey == "" && config.Crypto.MasterPassphrase == "" {
		return fmt.Errorf("crypto.masterKey or crypto.masterPassphrase is required")
	}
	if config.Crypto.APIHMACKey == "" {
		return fmt.Errorf("crypto.apiHmacKey is required")
	}
	// The operator endpoints are always mounted; an empty signing secret
	// would make their tokens forgeable.
	if config.Crypto.JWTSecret == "" {
		return fmt.Errorf("crypto.jwtSecret is required")
	}
	if config.OTP.Algorithm != "trap" && config.OTP.Algorithm != "rotation" {
		return fmt.Errorf("otp.algorithm must be \"trap\" or \"rotation\", got %q", config.OTP.Algorithm)
	}
	return nil
}
