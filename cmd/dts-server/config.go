package main

import (
	"github.com/dts/scheduler/pkg/registry"
	"github.com/dts/scheduler/pkg/utils"
)

// Config is the server's full configuration surface, unmarshalled by viper
// from flags, environment (prefix DTS_), or a dts-server.yaml config file,
// mirroring the teacher's cmd/scheduler Config.
type Config struct {
	Port           int               `mapstructure:"port"`
	InitialContext int               `mapstructure:"initial_context"`
	PoolCapacity   int               `mapstructure:"pool_capacity"`
	MemOverride    string            `mapstructure:"mem_override"`
	GRPC           utils.GRPCOptions `mapstructure:"grpc"`
	Registry       registry.Config   `mapstructure:"registry"`
}
