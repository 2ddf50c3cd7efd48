package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MinEmbeddingDim is the smallest embedding dimension the core accepts.
// Anything below this is bumped up to keep fingerprint vectors meaningful.
const MinEmbeddingDim = 32

// Profile is the configuration to start the recommendation core.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Data is the data directory
	Data string
	// DSN points to where cratedig stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of the server
	Version string

	// Recommendation configuration
	UseCLAP            bool   // RECS_USE_CLAP (default: false)
	EmbeddingDim       int    // RECS_EMBEDDING_DIM (default: 512, effective minimum 32)
	EmbeddingFallback  string // RECS_EMBEDDING_FALLBACK (default: fingerprint)
	RecommendationMode string // RECS_RECOMMENDATION_MODE (default: fusion)

	// CLAP sidecar configuration
	CLAPBaseURL string // RECS_CLAP_BASE_URL
	CLAPAPIKey  string // RECS_CLAP_API_KEY
	CLAPModel   string // RECS_CLAP_MODEL (default: laion/clap-htsat-fused)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsCLAPEnabled returns true if CLAP embedding is enabled and a sidecar is configured.
func (p *Profile) IsCLAPEnabled() bool {
	return p.UseCLAP && p.CLAPBaseURL != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads recommendation configuration from environment variables.
func (p *Profile) FromEnv() {
	p.UseCLAP = os.Getenv("RECS_USE_CLAP") == "true"
	p.EmbeddingFallback = getEnvOrDefault("RECS_EMBEDDING_FALLBACK", "fingerprint")
	p.RecommendationMode = getEnvOrDefault("RECS_RECOMMENDATION_MODE", "fusion")
	p.CLAPBaseURL = os.Getenv("RECS_CLAP_BASE_URL")
	p.CLAPAPIKey = os.Getenv("RECS_CLAP_API_KEY")
	p.CLAPModel = getEnvOrDefault("RECS_CLAP_MODEL", "laion/clap-htsat-fused")

	if dim, err := strconv.Atoi(os.Getenv("RECS_EMBEDDING_DIM")); err == nil {
		p.EmbeddingDim = dim
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.EmbeddingDim <= 0 {
		p.EmbeddingDim = 512
	}
	if p.EmbeddingDim < MinEmbeddingDim {
		p.EmbeddingDim = MinEmbeddingDim
	}

	if p.EmbeddingFallback == "" {
		p.EmbeddingFallback = "fingerprint"
	}

	switch p.RecommendationMode {
	case "":
		p.RecommendationMode = "fusion"
	case "fusion", "rules":
	default:
		return errors.Errorf("unknown recommendation mode %q: only 'fusion' and 'rules' are supported", p.RecommendationMode)
	}

	if p.Driver == "sqlite" && p.DSN == "" {
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			return err
		}
		p.Data = dataDir
		dbFile := fmt.Sprintf("cratedig_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
