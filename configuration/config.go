package configuration

import (
	"flag"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfig Load minimum working configuration to allow
// the gateway start without a user provided one
func DefaultConfig() *Config {
	c := Config{}
	if err := yaml.Unmarshal(defaultConfig, &c); err != nil {
		panic(err.Error())
	}

	return &c
}

// ReadConfig read service configuration
func ReadConfig() *Config {
	log := GetLogger()
	log.Info("loading config")

	flag.Parse()

	c := DefaultConfig()

	if len(configFile) == 0 {
		log.Info("no config file provided\nuse --config option or FLEETMQ_CONFIG environment variable to provide own")
	} else {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error("config not found", "file", configFile)
			return nil
		}

		data, err := os.ReadFile(configFile)
		if err != nil {
			panic(err.Error())
		}

		if err = yaml.Unmarshal(data, c); err != nil {
			panic(err.Error())
		}
	}

	return c
}
