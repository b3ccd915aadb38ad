package common

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig reads the optional config file and layers ROSTER_* environment
// variables on top. An empty path returns a viper carrying env + defaults only.
func LoadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("ROSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("db.dsn", "")
	v.SetDefault("files.driver", "file")
	v.SetDefault("files.base_dir", "data/files")
	v.SetDefault("jwt.ttl", "8h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// ValidateServerConfig checks the keys the server cannot run without.
func ValidateServerConfig(v *viper.Viper) error {
	if strings.TrimSpace(v.GetString("jwt.secret")) == "" {
		return fmt.Errorf("jwt.secret is required (set ROSTER_JWT_SECRET or jwt.secret)")
	}
	switch d := v.GetString("files.driver"); d {
	case "file":
		if v.GetString("files.base_dir") == "" {
			return fmt.Errorf("files.base_dir is required for the file driver")
		}
	case "s3":
		if v.GetString("files.bucket") == "" {
			return fmt.Errorf("files.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown files.driver: %s", d)
	}
	rbacModel, rbacPolicy := v.GetString("rbac.model"), v.GetString("rbac.policy")
	if (rbacModel == "") != (rbacPolicy == "") {
		return fmt.Errorf("rbac.model and rbac.policy must be set together")
	}
	return nil
}
