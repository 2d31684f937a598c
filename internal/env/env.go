package env

import (
	"github.com/thatsimonsguy/panel-provisioner/internal/config"
)

var (
	Cfg *config.Config
)
