// Command relayctl is the operator-facing client for the chat relay's
// pull REST API: retrieve/lease/ack/nack the delivery queue and send
// outbound replies, without standing up a backend process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// cliConfig holds the persistent connection settings, optionally
// loaded from --config and overridden by --base-url/--api-key.
type cliConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

var (
	configPath string
	baseURLFlag string
	apiKeyFlag  string
)

func main() {
	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Client for the chat relay's pull REST API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a relayctl config file (yaml: base_url, api_key)")
	root.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "relay base URL, e.g. http://localhost:8080")
	root.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "backend bot API key")

	root.AddCommand(
		retrieveCmd(),
		leaseCmd(),
		ackCmd(),
		nackCmd(),
		sendCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeOf(err))
	}
}

// buildClient resolves the effective base URL and API key from
// --config, then --base-url/--api-key overrides, and fails with a
// usage error if either is still unset.
func buildClient() (*client, error) {
	cfg := cliConfig{}
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return nil, usageErrorf("reading %s: %v", configPath, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, usageErrorf("parsing %s: %v", configPath, err)
		}
	}
	if baseURLFlag != "" {
		cfg.BaseURL = baseURLFlag
	}
	if apiKeyFlag != "" {
		cfg.APIKey = apiKeyFlag
	}

	if cfg.BaseURL == "" {
		return nil, usageErrorf("base URL not set (use --base-url or --config)")
	}
	if cfg.APIKey == "" {
		return nil, usageErrorf("api key not set (use --api-key or --config)")
	}

	return newClient(cfg.BaseURL, cfg.APIKey), nil
}
