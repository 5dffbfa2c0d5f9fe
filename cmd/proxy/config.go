package main

import (
	"encoding/json"
	"os"
)

// Config for proxy. Flags populate it first; -c/--config then
// overrides whichever fields the JSON file sets, matching the
// teacher's parseJSONConfig override-after-flags ordering in
// client/config.go/server/config.go.
type Config struct {
	Listen       string `json:"listen"`
	Remote       string `json:"remote"`
	Backlog      int    `json:"backlog"`
	Connections  int    `json:"connections"`
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
