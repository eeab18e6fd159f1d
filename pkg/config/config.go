package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env  string
	Port int

	Telegram  TelegramConfig
	Roster    RosterConfig
	Session   SessionConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Assistant AssistantConfig
	Photos    PhotosConfig
	CORS      CORSConfig
	Log       LogConfig
}

type TelegramConfig struct {
	Token       string
	MainAdminID int64
	WebAppURL   string
	PollTimeout time.Duration
}

// RosterConfig names the backing tables and the well-known roster columns.
type RosterConfig struct {
	MainTable      string
	UsersTable     string
	AccessLogTable string
	ActionLogTable string

	FirstNameColumn string
	LastNameColumn  string
	BirthDateColumn string
	HomeroomColumn  string
	StatusColumn    string
	PhotoColumn     string

	DateColumns     []string
	HomeroomValues  []string
	StatusValues    []string
	UnassignedGroup string
}

// SessionConfig tunes conversation session storage.
type SessionConfig struct {
	Storage       string
	Timeout       time.Duration
	SweepInterval time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AssistantConfig governs the table question-answering integration.
type AssistantConfig struct {
	APIKey         string
	Model          string
	MaxAnswerRunes int
	Timeout        time.Duration
}

type PhotosConfig struct {
	StorageDir string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DateColumn reports whether the named column holds date values.
func (r RosterConfig) DateColumn(name string) bool {
	for _, col := range r.DateColumns {
		if col == name {
			return true
		}
	}
	return false
}

// KnownTables lists every table the cache should manage.
func (r RosterConfig) KnownTables() []string {
	return []string{r.MainTable, r.UsersTable, r.AccessLogTable, r.ActionLogTable}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Telegram = TelegramConfig{
		Token:       v.GetString("TELEGRAM_TOKEN"),
		MainAdminID: v.GetInt64("MAIN_ADMIN_ID"),
		WebAppURL:   v.GetString("WEBAPP_URL"),
		PollTimeout: parseDuration(v.GetString("TELEGRAM_POLL_TIMEOUT"), 30*time.Second),
	}

	cfg.Roster = RosterConfig{
		MainTable:       v.GetString("ROSTER_MAIN_TABLE"),
		UsersTable:      v.GetString("ROSTER_USERS_TABLE"),
		AccessLogTable:  v.GetString("ROSTER_ACCESS_LOG_TABLE"),
		ActionLogTable:  v.GetString("ROSTER_ACTION_LOG_TABLE"),
		FirstNameColumn: v.GetString("ROSTER_COL_FIRST_NAME"),
		LastNameColumn:  v.GetString("ROSTER_COL_LAST_NAME"),
		BirthDateColumn: v.GetString("ROSTER_COL_BIRTH_DATE"),
		HomeroomColumn:  v.GetString("ROSTER_COL_HOMEROOM"),
		StatusColumn:    v.GetString("ROSTER_COL_STATUS"),
		PhotoColumn:     v.GetString("ROSTER_COL_PHOTO"),
		DateColumns:     splitAndTrim(v.GetString("ROSTER_DATE_COLUMNS")),
		HomeroomValues:  splitAndTrim(v.GetString("ROSTER_HOMEROOM_VALUES")),
		StatusValues:    splitAndTrim(v.GetString("ROSTER_STATUS_VALUES")),
		UnassignedGroup: v.GetString("ROSTER_UNASSIGNED_GROUP"),
	}

	cfg.Session = SessionConfig{
		Storage:       v.GetString("SESSION_STORAGE"),
		Timeout:       parseDuration(v.GetString("SESSION_TIMEOUT"), 30*time.Minute),
		SweepInterval: parseDuration(v.GetString("SESSION_SWEEP_INTERVAL"), 5*time.Minute),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Assistant = AssistantConfig{
		APIKey:         v.GetString("GEMINI_API_KEY"),
		Model:          v.GetString("GEMINI_MODEL"),
		MaxAnswerRunes: v.GetInt("ASSISTANT_MAX_ANSWER"),
		Timeout:        parseDuration(v.GetString("ASSISTANT_TIMEOUT"), 45*time.Second),
	}

	cfg.Photos = PhotosConfig{StorageDir: v.GetString("PHOTOS_STORAGE_DIR")}
	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("TELEGRAM_TOKEN", "")
	v.SetDefault("MAIN_ADMIN_ID", 526710245)
	v.SetDefault("WEBAPP_URL", "")
	v.SetDefault("TELEGRAM_POLL_TIMEOUT", "30s")

	v.SetDefault("ROSTER_MAIN_TABLE", "MainSheet")
	v.SetDefault("ROSTER_USERS_TABLE", "Users")
	v.SetDefault("ROSTER_ACCESS_LOG_TABLE", "AccessLog")
	v.SetDefault("ROSTER_ACTION_LOG_TABLE", "ActionLog")
	v.SetDefault("ROSTER_COL_FIRST_NAME", "Имя")
	v.SetDefault("ROSTER_COL_LAST_NAME", "Фамилия")
	v.SetDefault("ROSTER_COL_BIRTH_DATE", "Дата рождения")
	v.SetDefault("ROSTER_COL_HOMEROOM", "Домашка")
	v.SetDefault("ROSTER_COL_STATUS", "Статус")
	v.SetDefault("ROSTER_COL_PHOTO", "Фото")
	v.SetDefault("ROSTER_DATE_COLUMNS", "Дата рождения,Дата,Дата регистрации")
	v.SetDefault("ROSTER_HOMEROOM_VALUES", strings.Join([]string{
		"т. Лилия / Иордан",
		"Т.Роза / Grace",
		"Аркадий, Татьяна / Ковчег",
		"Руслан, Наталья / Осанна",
		"Слава, Ная / Домашка №1",
		"Гоша / Zion",
		"Ирина / Miracle",
		"Регина / Yeshua",
		"Диана / Yeshua Alive",
		"Виталик / Lion",
		"Лия / Heaven",
		"Ричард / Grace",
		"Ребенок",
		"Предподросток",
		"Не распределен",
	}, ","))
	v.SetDefault("ROSTER_STATUS_VALUES", "активный,неактивный,вип")
	v.SetDefault("ROSTER_UNASSIGNED_GROUP", "Не распределен")

	v.SetDefault("SESSION_STORAGE", "memory")
	v.SetDefault("SESSION_TIMEOUT", "30m")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "5m")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "rosterbot")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("ASSISTANT_MAX_ANSWER", 3000)
	v.SetDefault("ASSISTANT_TIMEOUT", "45s")

	v.SetDefault("PHOTOS_STORAGE_DIR", "./photos")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
