package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host string `env:"HOST,required=true"`
	Port int    `env:"PORT,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	CipherKeyPath  string `env:"CIPHER_KEY_PATH,required=true"`
	FilesDir       string `env:"FILES_DIR,required=true"`

	BufferSize      int           `env:"BUFFER_SIZE,required=true"`
	NumberOfWorkers int           `env:"NUMBER_OF_WORKERS,required=true"`
	SinkTimeout     time.Duration `env:"SINK_TIMEOUT,required=true"`
	CharReplacement string        `env:"CHARACTER_REPLACEMENT,required=true"`
	LimitMessages   *int          `env:"LIMIT_MESSAGES"`

	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	AdminIdentities   string        `env:"ADMIN_IDENTITIES"`

	MessagesPerSecond float64 `env:"MESSAGES_PER_SECOND,required=true"`
	MessageBurst      int     `env:"MESSAGE_BURST,required=true"`

	LogLevel  string `env:"LOG_LEVEL,required=true"`
	DebugPort int    `env:"DEBUG_PORT"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
