// Package config loads and watches the application configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"path"
	"runtime"
	"time"

	"github.com/adrg/xdg"
	"github.com/leighmacdonald/steamid/v4/steamid"
)

var (
	errConfigWrite = errors.New("failed to write config file")
	errConfigRead  = errors.New("failed to read config file")
	errLoggerInit  = errors.New("failed to initialize logger")
)

const (
	ConfigDirName     = "tf-lobby"
	DefaultConfigName = "tf-lobby"
	DefaultDBName     = "tf-lobby.db"
	DefaultLogName    = "tf-lobby.log"
	EnvPrefix         = "tflobby"
	DefaultRCONAddr   = "127.0.0.1:27015"
	DefaultTimeout    = 15 * time.Second
)

type Config struct {
	// TODO implement encoding.TextUnmarshaler so we can decode directly with viper/mapstructure
	SteamID        steamid.SteamID `mapstructure:"-"`
	SteamIDString  string          `mapstructure:"steam_id"`
	Address        string          `mapstructure:"address"`
	Password       string          `mapstructure:"password"`
	ConsoleLogPath string          `mapstructure:"console_log_path"`
	UpdateFreqMs   int             `mapstructure:"update_freq_ms,omitempty"`
	// RetentionSecs controls how long departed players remain visible before
	// being dropped from lobby state.
	RetentionSecs int    `mapstructure:"retention_secs,omitempty"`
	DBPath        string `mapstructure:"db_path,omitempty"`
	// ChatTranslationLang enables best effort chat translation into the given
	// language code when non-empty.
	ChatTranslationLang string `mapstructure:"chat_translation_lang"`
	Debug               bool   `mapstructure:"debug"`
}

// Path generates a path pointing to the filename under this apps defined $XDG_CONFIG_HOME.
func Path(name string) string {
	fullPath, errFullPath := xdg.ConfigFile(path.Join(ConfigDirName, name))
	if errFullPath != nil {
		panic(errFullPath)
	}

	return fullPath
}

func defaultConsoleLogPath() string {
	switch runtime.GOOS {
	case "darwin":
		// Untested
		usr, err := user.Current()
		if err != nil {
			panic(err)
		}

		return fmt.Sprintf("/Users/%s/Library/Application Support/Steam/steamapps/common/Team Fortress 2/tf/console.log", usr.Name)
	case "linux":
		homedir, err := os.UserHomeDir()
		if err != nil {
			homedir = "/"
		}

		return path.Join(homedir, ".steam/steam/steamapps/common/Team Fortress 2/tf/console.log")
	case "windows":
		// Untested
		return "C:\\Program Files (x86)\\Steam\\steamapps\\common\\Team Fortress 2\\tf\\console.log"
	default:
		return ""
	}
}

// LoggerInit sets up the slog global handler to write to a log file.
func LoggerInit(logPath string, level slog.Level) (io.Closer, error) {
	logFile, errLogFile := os.Create(path.Join(xdg.ConfigHome, ConfigDirName, logPath))
	if errLogFile != nil {
		return nil, errors.Join(errLogFile, errLoggerInit)
	}

	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	}))

	slog.SetDefault(logger)

	return logFile, nil
}
