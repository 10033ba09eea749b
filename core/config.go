package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Conf holds the app-wide configuration. It is loaded once at startup.
var Conf *Config

type Config struct {
	AppName         string
	Env             string // DEV (default), TEST, QA, PROD
	Debug           bool
	TestMode        bool
	Build           string
	SecretKey       string
	WorkDir         string
	FrontendBaseURL string
	DefaultCurrency string

	Server struct {
		Host               string
		Addr               string
		JWTExpirationDelta time.Duration
	}

	Database struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	Sendgrid struct {
		Key       string
		FromEmail string
	}

	SMS struct {
		GatewayURL   string
		GatewayToken string
		Sender       string
	}

	RollbarToken string
}

func (c *Config) DatabaseAddress() string {
	return fmt.Sprintf("%s:%s", c.Database.Host, c.Database.Port)
}

func init() {
	Conf = LoadConfig()
}

// LoadConfig builds a Config from defaults, an optional config/.env.<env> file
// and ENV-prefixed environment variables.
func LoadConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Makuta")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "b0q5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("defaultCurrency", "CDF")
	v.SetDefault("frontendBaseURL", "http://localhost:4200")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "makuta")
	v.SetDefault("database.user", "makuta")
	v.SetDefault("database.password", "makuta")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("sendgrid.fromEmail", "noreply@localhost")
	v.SetDefault("sms.sender", "MAKUTA")

	env := os.Getenv("ENV")
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()
	v.SetDefault("workDir", wd)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
	conf.Env = env
	return conf
}
