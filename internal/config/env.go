package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Env - источник переменных окружения (сигнатура os.LookupEnv).
type Env func(key string) (string, bool)

// OSEnv читает окружение процесса.
var OSEnv Env = os.LookupEnv

// MapEnv строит Env из карты, удобно в тестах.
func MapEnv(values map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// str возвращает значение переменной; пустая строка считается незаданной.
func (e Env) str(key string) *string {
	v, ok := e(key)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func (e Env) integer(key string, errs *[]error) *int {
	s := e.str(key)
	if s == nil {
		return nil
	}
	n, err := strconv.Atoi(*s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, *s))
		return nil
	}
	return &n
}

func (e Env) boolean(key string, errs *[]error) *bool {
	s := e.str(key)
	if s == nil {
		return nil
	}
	switch strings.ToLower(*s) {
	case "1", "true", "yes", "on":
		v := true
		return &v
	case "0", "false", "no", "off":
		v := false
		return &v
	}
	*errs = append(*errs, fmt.Errorf("%s: %q is not a boolean", key, *s))
	return nil
}

// override выбирает первое заданное значение: окружение, файл, умолчание.
// Нулевое значение в файле считается незаданным.
func override[T comparable](env *T, file, def T) T {
	if env != nil {
		return *env
	}
	var zero T
	if file != zero {
		return file
	}
	return def
}

// overrideFlag - то же для флагов, где в файле важно отличить false от отсутствия.
func overrideFlag(env *bool, file *bool, def *bool) *bool {
	v := Bool(def)
	switch {
	case env != nil:
		v = *env
	case file != nil:
		v = *file
	}
	return &v
}

// overrideBool - для флагов, выключенных по умолчанию.
func overrideBool(env *bool, file, def bool) bool {
	if env != nil {
		return *env
	}
	return file || def
}

func overrideSlice[T any](file, def []T) []T {
	if len(file) > 0 {
		return file
	}
	return def
}

// Resolve собирает итоговую конфигурацию: override(окружение, файл, умолчание).
// Применяется один раз при загрузке.
func Resolve(env Env, file, def Root) (Root, error) {
	if env == nil {
		env = MapEnv(nil)
	}
	var errs []error

	var out Root

	out.App.Timezone = override(env.str("TIMEZONE"), file.App.Timezone, def.App.Timezone)

	out.Crawler = Crawler{
		Enabled:           overrideFlag(env.boolean("CRAWLER_ENABLED", &errs), file.Crawler.Enabled, def.Crawler.Enabled),
		APIURL:            override(env.str("CRAWLER_API_URL"), file.Crawler.APIURL, def.Crawler.APIURL),
		RequestIntervalMS: override(env.integer("REQUEST_INTERVAL_MS", &errs), file.Crawler.RequestIntervalMS, def.Crawler.RequestIntervalMS),
		Platforms:         overrideSlice(file.Crawler.Platforms, def.Crawler.Platforms),
		RSS: RSS{
			Enabled: overrideBool(env.boolean("RSS_ENABLED", &errs), file.Crawler.RSS.Enabled, def.Crawler.RSS.Enabled),
			Feeds:   overrideSlice(file.Crawler.RSS.Feeds, def.Crawler.RSS.Feeds),
		},
	}

	out.Report = Report{
		Mode:                override(env.str("REPORT_MODE"), file.Report.Mode, def.Report.Mode),
		RankThreshold:       override(env.integer("RANK_THRESHOLD", &errs), file.Report.RankThreshold, def.Report.RankThreshold),
		SortByPositionFirst: overrideBool(env.boolean("SORT_BY_POSITION_FIRST", &errs), file.Report.SortByPositionFirst, def.Report.SortByPositionFirst),
		MaxNewsPerKeyword:   override(env.integer("MAX_NEWS_PER_KEYWORD", &errs), file.Report.MaxNewsPerKeyword, def.Report.MaxNewsPerKeyword),
	}

	out.Weight = Weight{
		RankWeight:      override[float64](nil, file.Weight.RankWeight, def.Weight.RankWeight),
		FrequencyWeight: override[float64](nil, file.Weight.FrequencyWeight, def.Weight.FrequencyWeight),
		HotnessWeight:   override[float64](nil, file.Weight.HotnessWeight, def.Weight.HotnessWeight),
	}

	out.Notification = Notification{
		Enabled: overrideFlag(env.boolean("ENABLE_NOTIFICATION", &errs), file.Notification.Enabled, def.Notification.Enabled),
		Telegram: Telegram{
			BotToken: override(env.str("TELEGRAM_BOT_TOKEN"), file.Notification.Telegram.BotToken, def.Notification.Telegram.BotToken),
			ChatID:   override(env.str("TELEGRAM_CHAT_ID"), file.Notification.Telegram.ChatID, def.Notification.Telegram.ChatID),
		},
		PushWindow: PushWindow{
			Enabled:    overrideBool(env.boolean("PUSH_WINDOW_ENABLED", &errs), file.Notification.PushWindow.Enabled, def.Notification.PushWindow.Enabled),
			Start:      override(env.str("PUSH_WINDOW_START"), file.Notification.PushWindow.Start, def.Notification.PushWindow.Start),
			End:        override(env.str("PUSH_WINDOW_END"), file.Notification.PushWindow.End, def.Notification.PushWindow.End),
			OncePerDay: overrideFlag(env.boolean("PUSH_WINDOW_ONCE_PER_DAY", &errs), file.Notification.PushWindow.OncePerDay, def.Notification.PushWindow.OncePerDay),
		},
	}

	fs, ds := file.Storage, def.Storage
	out.Storage = Storage{
		Backend: strings.ToLower(override(env.str("STORAGE_BACKEND"), fs.Backend, ds.Backend)),
		Formats: Formats{
			TXT: overrideFlag(env.boolean("STORAGE_TXT_ENABLED", &errs), fs.Formats.TXT, ds.Formats.TXT),
		},
		Local: Local{
			DataDir:       override(env.str("DATA_DIR"), fs.Local.DataDir, ds.Local.DataDir),
			RetentionDays: override(env.integer("LOCAL_RETENTION_DAYS", &errs), fs.Local.RetentionDays, ds.Local.RetentionDays),
		},
		Remote: Remote{
			BucketName:      override(env.str("S3_BUCKET_NAME"), fs.Remote.BucketName, ds.Remote.BucketName),
			AccessKeyID:     override(env.str("S3_ACCESS_KEY_ID"), fs.Remote.AccessKeyID, ds.Remote.AccessKeyID),
			SecretAccessKey: override(env.str("S3_SECRET_ACCESS_KEY"), fs.Remote.SecretAccessKey, ds.Remote.SecretAccessKey),
			EndpointURL:     override(env.str("S3_ENDPOINT_URL"), fs.Remote.EndpointURL, ds.Remote.EndpointURL),
			Region:          override(env.str("S3_REGION"), fs.Remote.Region, ds.Remote.Region),
			RetentionDays:   override(env.integer("REMOTE_RETENTION_DAYS", &errs), fs.Remote.RetentionDays, ds.Remote.RetentionDays),
		},
		Pull: Pull{
			Enabled: overrideBool(env.boolean("PULL_ENABLED", &errs), fs.Pull.Enabled, ds.Pull.Enabled),
			Days:    override(env.integer("PULL_DAYS", &errs), fs.Pull.Days, ds.Pull.Days),
		},
	}

	out.Cache = Cache{
		TTLSeconds: override(env.integer("CACHE_TTL_SECONDS", &errs), file.Cache.TTLSeconds, def.Cache.TTLSeconds),
	}
	out.FrequencyWordsPath = override(env.str("FREQUENCY_WORDS_PATH"), file.FrequencyWordsPath, def.FrequencyWordsPath)

	if len(errs) > 0 {
		return Root{}, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return out, nil
}
