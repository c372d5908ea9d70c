package settings

import "github.com/kelseyhightower/envconfig"

type Config struct {
	Node struct {
		ListenAddr         string   `envconfig:"NODE_LISTEN_ADDR" default:"0.0.0.0:9884"`
		BootstrapPeers     []string `envconfig:"NODE_BOOTSTRAP_PEERS"`
		MinBlockchainPeers int      `envconfig:"NODE_MIN_BLOCKCHAIN_PEERS" default:"3"`
	}
	Repository struct {
		Path string `envconfig:"REPOSITORY_PATH" default:"data/repository"`
	}
	Blobs struct {
		Path string `envconfig:"BLOB_PATH" default:"data/blobs"`
	}
}

func GetConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
