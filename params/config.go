package params

import (
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Venue struct {
	// VenueAccount is the escrow account all order funds and collected
	// fees are pooled under.
	VenueAccount common.Address
	// Authority is the governance account allowed to accrue fees
	// through passed proposals.
	Authority common.Address
	// Distributor is the initial fee distributor; governance can
	// replace it.
	Distributor common.Address
	// FeeAsset is the asset fee withdrawals pay out in.
	FeeAsset string
	// TradingFeeBps is the default trading fee: basis points of the
	// filled TokenX quantity.
	TradingFeeBps int64
}

type Node struct {
	APIAddr string
	DBPath  string
	LogFile string
	// BlockTimeMs throttles the devnet block ticker that advances the
	// chain clock. Production hosts drive the clock from real commits.
	BlockTimeMs int
}

type Config struct {
	Venue Venue
	Node  Node
}

func Default() Config {
	return Config{
		Venue: Venue{
			VenueAccount:  common.HexToAddress("0x00000000000000000000000000000000000f3e01"),
			Authority:     common.HexToAddress("0x00000000000000000000000000000000000a0701"),
			Distributor:   common.HexToAddress("0x00000000000000000000000000000000000d1501"),
			FeeAsset:      "USDC",
			TradingFeeBps: 30, // 0.30%
		},
		Node: Node{
			APIAddr:     ":8080",
			DBPath:      "data/venue.db",
			LogFile:     "data/node.log",
			BlockTimeMs: 200,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("VENUE_ACCOUNT"); common.IsHexAddress(v) {
		cfg.Venue.VenueAccount = common.HexToAddress(v)
	}
	if v := os.Getenv("GOV_AUTHORITY"); common.IsHexAddress(v) {
		cfg.Venue.Authority = common.HexToAddress(v)
	}
	if v := os.Getenv("FEE_DISTRIBUTOR"); common.IsHexAddress(v) {
		cfg.Venue.Distributor = common.HexToAddress(v)
	}
	if v := os.Getenv("FEE_ASSET"); v != "" {
		cfg.Venue.FeeAsset = v
	}
	if v := os.Getenv("TRADING_FEE_BPS"); v != "" {
		if bps, err := strconv.ParseInt(v, 10, 64); err == nil && bps >= 0 && bps <= 10000 {
			cfg.Venue.TradingFeeBps = bps
		}
	}

	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("BLOCK_TIME_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Node.BlockTimeMs = ms
		}
	}

	return cfg
}
