package config

import (
	"github.com/apex/log"
)

var configer Configer = &DotenvConfig{}

func SetConfig(c Configer) {
	configer = c
}

func GetConfig() Configer {
	return configer
}

// MustLoadFromSwapdDotenv loads the swapd dotenv file from the default
// location and returns the package Configer. Missing dotenv files are not
// fatal; the environment may already carry the configuration.
func MustLoadFromSwapdDotenv() Configer {
	c := NewDotenvConfig(DefaultDotenvPath())
	if err := c.Load(); err != nil {
		log.Infof("No dotenv file at %s, using environment only", c.DotenvPath)
	}

	SetConfig(c)

	return c
}

func LoadFromPath(path string) error {
	return configer.LoadFromPath(path)
}

func Load() error {
	return configer.Load()
}

func GetKey(key string) string {
	return configer.GetKey(key)
}

func MustGetKey(key string) string {
	return configer.MustGetKey(key)
}

func GetKeyWithDefault(key, defaultValue string) string {
	return configer.GetKeyWithDefault(key, defaultValue)
}

func GetIntKey(key string) int {
	return configer.GetIntKey(key)
}

func MustGetIntKey(key string) int {
	return configer.MustGetIntKey(key)
}

func GetIntKeyWithDefault(key string, defaultValue int) int {
	return configer.GetIntKeyWithDefault(key, defaultValue)
}

func GetInt64KeyWithDefault(key string, defaultValue int64) int64 {
	return configer.GetInt64KeyWithDefault(key, defaultValue)
}
