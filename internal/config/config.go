package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath - путь к основному файлу конфигурации, если не задан CONFIG_PATH.
const DefaultPath = "config/config.yaml"

// ErrInvalid возвращается, если итоговая конфигурация не проходит проверку.
var ErrInvalid = errors.New("invalid config")

type (
	// Root объединяет все конфигурационные блоки.
	Root struct {
		App                App          `yaml:"app"`
		Crawler            Crawler      `yaml:"crawler"`
		Report             Report       `yaml:"report"`
		Weight             Weight       `yaml:"weight"`
		Notification       Notification `yaml:"notification"`
		Storage            Storage      `yaml:"storage"`
		Cache              Cache        `yaml:"cache"`
		FrequencyWordsPath string       `yaml:"frequency_words_path" validate:"required"`
	}

	// App - общие параметры приложения.
	App struct {
		Timezone string `yaml:"timezone" validate:"required"`
	}

	// Crawler описывает источники и темп обхода.
	Crawler struct {
		Enabled           *bool      `yaml:"enabled"`
		APIURL            string     `yaml:"api_url" validate:"omitempty,url"`
		RequestIntervalMS int        `yaml:"request_interval_ms" validate:"gte=0"`
		Platforms         []Platform `yaml:"platforms" validate:"dive"`
		RSS               RSS        `yaml:"rss"`
	}

	// Platform - площадка, отдающая рейтинг через API.
	Platform struct {
		ID   string `yaml:"id" validate:"required"`
		Name string `yaml:"name"`
	}

	// RSS - дополнительные ленты.
	RSS struct {
		Enabled bool   `yaml:"enabled"`
		Feeds   []Feed `yaml:"feeds" validate:"dive"`
	}

	// Feed - одна RSS/Atom-лента.
	Feed struct {
		ID       string `yaml:"id" validate:"required"`
		Name     string `yaml:"name"`
		URL      string `yaml:"url" validate:"required,url"`
		MaxItems int    `yaml:"max_items" validate:"gte=0"`
	}

	// Report управляет построением отчёта.
	Report struct {
		Mode                string `yaml:"mode" validate:"oneof=daily current incremental"`
		RankThreshold       int    `yaml:"rank_threshold" validate:"gte=1"`
		SortByPositionFirst bool   `yaml:"sort_by_position_first"`
		MaxNewsPerKeyword   int    `yaml:"max_news_per_keyword" validate:"gte=0"`
	}

	// Weight - коэффициенты итогового веса новости.
	Weight struct {
		RankWeight      float64 `yaml:"rank_weight" validate:"gte=0"`
		FrequencyWeight float64 `yaml:"frequency_weight" validate:"gte=0"`
		HotnessWeight   float64 `yaml:"hotness_weight" validate:"gte=0"`
	}

	// Notification - канал уведомлений и окно отправки.
	Notification struct {
		Enabled    *bool      `yaml:"enabled"`
		Telegram   Telegram   `yaml:"telegram"`
		PushWindow PushWindow `yaml:"push_window"`
	}

	// Telegram - реквизиты бота.
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	}

	// PushWindow ограничивает время отправки (HH:MM, включительно).
	PushWindow struct {
		Enabled    bool   `yaml:"enabled"`
		Start      string `yaml:"start" validate:"hhmm"`
		End        string `yaml:"end" validate:"hhmm"`
		OncePerDay *bool  `yaml:"once_per_day"`
	}

	// Storage описывает выбор бэкенда и политику хранения.
	Storage struct {
		Backend string  `yaml:"backend" validate:"oneof=auto local remote"`
		Formats Formats `yaml:"formats"`
		Local   Local   `yaml:"local"`
		Remote  Remote  `yaml:"remote"`
		Pull    Pull    `yaml:"pull"`
	}

	// Formats - дополнительные форматы сохранения.
	Formats struct {
		TXT *bool `yaml:"txt"`
	}

	// Local - локальное дерево с базами по датам.
	Local struct {
		DataDir       string `yaml:"data_dir" validate:"required"`
		RetentionDays int    `yaml:"retention_days" validate:"gte=0"`
	}

	// Remote - S3-совместимое хранилище.
	Remote struct {
		BucketName      string `yaml:"bucket_name"`
		AccessKeyID     string `yaml:"access_key_id"`
		SecretAccessKey string `yaml:"secret_access_key"`
		EndpointURL     string `yaml:"endpoint_url" validate:"omitempty,url"`
		Region          string `yaml:"region"`
		RetentionDays   int    `yaml:"retention_days" validate:"gte=0"`
	}

	// Pull - подтягивание последних дней из удалённого хранилища.
	Pull struct {
		Enabled bool `yaml:"enabled"`
		Days    int  `yaml:"days" validate:"gte=0"`
	}

	// Cache - параметры кэша чтения.
	Cache struct {
		TTLSeconds int `yaml:"ttl_seconds" validate:"gte=0"`
	}
)

// Complete сообщает, заданы ли все реквизиты удалённого хранилища.
func (r Remote) Complete() bool {
	return r.BucketName != "" && r.AccessKeyID != "" && r.SecretAccessKey != "" && r.EndpointURL != ""
}

// Location возвращает часовой пояс приложения (UTC, если зона неизвестна).
func (a App) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Bool разыменовывает флаг, nil означает false.
func Bool(p *bool) bool {
	return p != nil && *p
}

// Defaults возвращает встроенные значения по умолчанию.
func Defaults() Root {
	on := func() *bool { v := true; return &v }
	return Root{
		App: App{Timezone: "Asia/Shanghai"},
		Crawler: Crawler{
			Enabled:           on(),
			APIURL:            "https://newsnow.busiyi.world/api/s",
			RequestIntervalMS: 1000,
		},
		Report: Report{
			Mode:          "daily",
			RankThreshold: 5,
		},
		Weight: Weight{
			RankWeight:      0.4,
			FrequencyWeight: 0.3,
			HotnessWeight:   0.3,
		},
		Notification: Notification{
			Enabled: on(),
			PushWindow: PushWindow{
				Start:      "08:00",
				End:        "22:00",
				OncePerDay: on(),
			},
		},
		Storage: Storage{
			Backend: "auto",
			Formats: Formats{TXT: on()},
			Local:   Local{DataDir: "output"},
			Pull:    Pull{Days: 7},
		},
		Cache:              Cache{TTLSeconds: 900},
		FrequencyWordsPath: "config/frequency_words.txt",
	}
}

// ReadFile читает YAML без применения умолчаний и окружения.
func ReadFile(path string) (Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Root{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Root
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Root{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Load читает файл, накладывает окружение и умолчания и проверяет результат.
// Если path пуст, используется CONFIG_PATH или DefaultPath.
func Load(path string, env Env) (Root, error) {
	if env == nil {
		env = OSEnv
	}
	if path == "" {
		path = override(env.str("CONFIG_PATH"), "", DefaultPath)
	}

	file, err := ReadFile(path)
	if err != nil {
		return Root{}, err
	}

	cfg, err := Resolve(env, file, Defaults())
	if err != nil {
		return Root{}, err
	}
	if err := Validate(cfg); err != nil {
		return Root{}, err
	}
	return cfg, nil
}
