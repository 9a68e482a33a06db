package storage

import "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/config"

func configFor(backend string) config.PostingsConfig {
	return config.PostingsConfig{Backend: backend, DataDir: "testdata"}
}
