package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string `json:"port"`
	DBURL    string `json:"dbUrl"`
	DBSchema string `json:"dbSchema"`

	// Общая таблица внешних идентификаторов (generic extension)
	GenericTable    string `json:"genericTable"`
	GenericIDColumn string `json:"genericIdColumn"`
	QualifierColumn string `json:"qualifierColumn"`

	CommitBatchSize  int    `json:"commitBatchSize"` // 0 — один commit в конце
	SubstitutesDir   string `json:"substitutesDir"`
	StatementTimeout string `json:"statementTimeout"` // time.ParseDuration, "0" — без таймаута
}

func def() Config {
	return Config{
		Port:     "8080",
		DBURL:    "",
		DBSchema: "public",

		GenericTable:    "external_ids",
		GenericIDColumn: "res_id",
		QualifierColumn: "qualifier",

		CommitBatchSize:  500,
		SubstitutesDir:   "reference/substitutes",
		StatementTimeout: "30s",
	}
}

func loadJSON(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getenvInt(k string, fallback int) (int, error) {
	v, ok := os.LookupEnv(k)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

// Load: значения по умолчанию, затем JSON (если файл есть), затем .env и TABLESYNC_*.
// Флаги командной строки накладываются уже в cmd.
func Load(jsonPath string) (Config, error) {
	cfg := def()

	if jsonPath != "" {
		if st, err := os.Stat(jsonPath); err == nil && !st.IsDir() {
			if err := loadJSON(jsonPath, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	// .env не перекрывает уже заданное окружение
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf(".env: %w", err)
	}

	cfg.Port = getenv("TABLESYNC_PORT", cfg.Port)
	cfg.DBURL = getenv("TABLESYNC_DB_URL", cfg.DBURL)
	cfg.DBSchema = getenv("TABLESYNC_DB_SCHEMA", cfg.DBSchema)
	cfg.GenericTable = getenv("TABLESYNC_GENERIC_TABLE", cfg.GenericTable)
	cfg.GenericIDColumn = getenv("TABLESYNC_GENERIC_ID_COLUMN", cfg.GenericIDColumn)
	cfg.QualifierColumn = getenv("TABLESYNC_QUALIFIER_COLUMN", cfg.QualifierColumn)
	cfg.SubstitutesDir = getenv("TABLESYNC_SUBSTITUTES_DIR", cfg.SubstitutesDir)
	cfg.StatementTimeout = getenv("TABLESYNC_STATEMENT_TIMEOUT", cfg.StatementTimeout)

	n, err := getenvInt("TABLESYNC_COMMIT_BATCH_SIZE", cfg.CommitBatchSize)
	if err != nil {
		return cfg, err
	}
	cfg.CommitBatchSize = n

	if _, err := cfg.Timeout(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Timeout — таймаут одного оператора; пусто или "0" — без ограничения.
func (c Config) Timeout() (time.Duration, error) {
	s := strings.TrimSpace(c.StatementTimeout)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("statementTimeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("statementTimeout: negative duration %s", s)
	}
	return d, nil
}
