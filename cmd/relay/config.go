package main

import (
	"encoding/json"
	"os"
)

// Config for relay. The relay has no --connections flag: N is
// discovered from however many sockets attach to a given group id
// during the ingress handshake, not configured up front.
type Config struct {
	Listen       string `json:"listen"`
	Target       string `json:"target"`
	Backlog      int    `json:"backlog"`
	Debug        int    `json:"debug"`
	Pprof        bool   `json:"pprof"`
	StatLog      string `json:"statlog"`
	StatInterval int    `json:"statinterval"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
