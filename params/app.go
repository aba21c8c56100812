package params

import (
	"compress/gzip"
	"github.com/ethereum/go-ethereum/metrics"
	"os"
	"time"
)

const AppName = "velofuse"

// DefaultGZipCompressionLevel is used for session recordings, which are written live.
var DefaultGZipCompressionLevel = gzip.BestSpeed

var (
	INFLUXDB_URL    = os.Getenv("INFLUXDB_URL")
	INFLUXDB_TOKEN  = os.Getenv("INFLUXDB_TOKEN")
	INFLUXDB_ORG    = os.Getenv("INFLUXDB_ORG")
	INFLUXDB_BUCKET = os.Getenv("INFLUXDB_BUCKET")
)

type InfluxConfig struct {
	URL, Token, Org, Bucket string
	// BatchSize is the number of estimates buffered before a write.
	BatchSize int
	// FlushInterval bounds how long a partial batch waits.
	FlushInterval time.Duration
}

func (c *InfluxConfig) Enabled() bool {
	return c != nil && c.URL != "" && c.Bucket != ""
}

func DefaultInfluxConfig() *InfluxConfig {
	return &InfluxConfig{
		URL:           INFLUXDB_URL,
		Token:         INFLUXDB_TOKEN,
		Org:           INFLUXDB_ORG,
		Bucket:        INFLUXDB_BUCKET,
		BatchSize:     60,
		FlushInterval: 10 * time.Second,
	}
}

type GPSDConfig struct {
	Address        string
	ReconnectDelay time.Duration

	// MaxDialFailures is the number of consecutive failed dials after which the
	// source gives up. Zero retries forever.
	MaxDialFailures int
}

func DefaultGPSDConfig() *GPSDConfig {
	return &GPSDConfig{
		Address:         "localhost:2947",
		ReconnectDelay:  5 * time.Second,
		MaxDialFailures: 3,
	}
}

func init() {
	// Counters are no-ops without this global setting.
	metrics.Enabled = true
}
