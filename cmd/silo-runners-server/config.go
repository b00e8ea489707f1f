package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	internalhttp "github.com/EternisAI/silo-runners/internal/api/http"
	"github.com/EternisAI/silo-runners/internal/auth"
	"github.com/EternisAI/silo-runners/internal/bootstrap"
	"github.com/EternisAI/silo-runners/internal/db"
	"github.com/EternisAI/silo-runners/internal/issuance"
	"github.com/EternisAI/silo-runners/internal/platform"
	"github.com/EternisAI/silo-runners/internal/reconcile"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Log       LogConfig
	Http      internalhttp.Config
	Grpc      GrpcConfig
	Db        db.Config
	Redis     RedisConfig
	Auth      auth.Config
	Platform  PlatformConfig
	Labels    LabelsConfig
	Issuance  issuance.Config
	Reconcile ReconcileConfig
	Bootstrap bootstrap.Config
}

type GrpcConfig struct {
	Port int       `mapstructure:"port"`
	TLS  TLSConfig `mapstructure:"tls"`
}

type TLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	CAFile     string `mapstructure:"ca_file"`
	ClientAuth string `mapstructure:"client_auth"`
}

// RedisConfig enables the cross-replica reconcile lock when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PlatformConfig struct {
	platform.GitHubConfig `mapstructure:",squash"`
	// Token is a personal access token. It is ignored when App.ID is set.
	Token       string                  `mapstructure:"token"`
	App         AppConfig               `mapstructure:"app"`
	Reliability platform.ReliableConfig `mapstructure:"reliability"`
}

type AppConfig struct {
	ID             int64  `mapstructure:"id"`
	InstallationID int64  `mapstructure:"installation_id"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
}

type LabelsConfig struct {
	Mandatory []string `mapstructure:"mandatory"`
}

type ReconcileConfig struct {
	reconcile.RunnerConfig `mapstructure:",squash"`
	reconcile.Options      `mapstructure:",squash"`
	LockKey                string        `mapstructure:"lock_key"`
	LockTTL                time.Duration `mapstructure:"lock_ttl"`
}

var config Config

func ParseCommaSeparated(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", LOG_LEVEL_INFO)
	v.SetDefault("log.format", LOG_FORMAT_TEXT)
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.admin_api_key", "")
	v.SetDefault("http.cors.allow_origins", []string{"*"})
	v.SetDefault("grpc.port", 9090)
	v.SetDefault("grpc.tls.enabled", false)
	v.SetDefault("grpc.tls.client_auth", "none")
	v.SetDefault("db.url", "")
	v.SetDefault("db.schema", "public")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "silo-runners")
	v.SetDefault("auth.expiration_mins", 60)
	v.SetDefault("platform.api_url", "https://api.github.com")
	v.SetDefault("platform.org", "")
	v.SetDefault("platform.repo", "")
	v.SetDefault("platform.token", "")
	v.SetDefault("platform.app.id", 0)
	v.SetDefault("platform.app.installation_id", 0)
	v.SetDefault("platform.app.private_key_file", "")
	v.SetDefault("labels.mandatory", []string{"self-hosted", "linux", "x64"})
	v.SetDefault("issuance.platform_url", "")
	v.SetDefault("issuance.default_runner_group_id", 1)
	v.SetDefault("issuance.work_folder", "_work")
	v.SetDefault("issuance.platform_timeout", 30*time.Second)
	v.SetDefault("issuance.jit_validity", time.Hour)
	v.SetDefault("reconcile.interval", 120*time.Second)
	v.SetDefault("reconcile.cycle_timeout", 5*time.Minute)
	v.SetDefault("reconcile.run_on_start", true)
	v.SetDefault("reconcile.reservation_ttl", 10*time.Minute)
	v.SetDefault("reconcile.remediate_busy_drift", false)
	v.SetDefault("reconcile.lock_key", "silo-runners:reconcile:lock")
	v.SetDefault("reconcile.lock_ttl", 5*time.Minute)
	v.SetDefault("bootstrap.file", "")
}

func InitConfig() {
	var err error

	flags := pflag.NewFlagSet("silo-runners-server", pflag.ExitOnError)
	configFile := flags.String("config", "", "path to application.yaml")
	_ = flags.Parse(os.Args[1:])

	_ = godotenv.Load()

	setDefaults(viper.GetViper())

	if *configFile != "" {
		viper.SetConfigFile(*configFile)
	} else {
		viper.SetConfigName("application")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./cmd/silo-runners-server")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || *configFile != "" {
			panic(err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	// LABELS_MANDATORY arrives as one comma-separated string.
	if len(config.Labels.Mandatory) == 1 {
		config.Labels.Mandatory = ParseCommaSeparated(config.Labels.Mandatory[0])
	}

	initLogger(config.Log)

	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		redacted := config
		redacted.Auth.Secret = "***"
		redacted.Http.AdminAPIKey = "***"
		redacted.Platform.Token = "***"
		redacted.Redis.Password = "***"
		configJSON, err := json.MarshalIndent(redacted, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}

// platformWebURL is the URL runners register against, derived from the
// runner scope when not configured explicitly.
func platformWebURL(cfg PlatformConfig, explicit string) string {
	if explicit != "" {
		return explicit
	}
	web := "https://github.com"
	if api := strings.TrimRight(cfg.APIURL, "/"); api != "" && api != "https://api.github.com" {
		web = strings.TrimSuffix(api, "/api/v3")
	}
	if cfg.Repo != "" {
		return fmt.Sprintf("%s/%s/%s", web, cfg.Org, cfg.Repo)
	}
	return fmt.Sprintf("%s/%s", web, cfg.Org)
}
