package config

import (
	"time"

	"github.com/spf13/viper"
)

// Every key has a default so that AutomaticEnv can bind it during Unmarshal.
var defaults = map[string]any{
	"logger.level": "info",
	"logger.json":  false,

	"telegram.token":           "",
	"telegram.request_timeout": 30 * time.Second,

	"pyrus.base_url":             "https://api.pyrus.com/v4",
	"pyrus.files_url":            "https://api.pyrus.com/v4",
	"pyrus.login":                "",
	"pyrus.security_key":         "",
	"pyrus.request_timeout":      30 * time.Second,
	"pyrus.retry.attempts":       3,
	"pyrus.retry.initial_delay":  4 * time.Second,
	"pyrus.retry.max_delay":      10 * time.Second,
	"pyrus.breaker.max_failures": 5,
	"pyrus.breaker.open_timeout": 30 * time.Second,

	"webhook.addr":                 "127.0.0.1:8000",
	"webhook.path":                 "/webhook",
	"webhook.user_agent_prefix":    "Pyrus-Bot-",
	"webhook.queue_size":           500,
	"webhook.max_body_bytes":       10 << 20,
	"webhook.download_concurrency": 50,
	"webhook.dump_path":            "",

	"files.max_size":     20 * 1024 * 1024,
	"media_group.window": 3 * time.Second,

	"forms.client.id":                0,
	"forms.client.fields.full_name":  26,
	"forms.client.fields.telephone":  27,
	"forms.client.fields.tg_account": 28,
	"forms.client.fields.tg_id":      29,
	"forms.appeal.id":                0,
	"forms.appeal.fields.full_name":  26,
	"forms.appeal.fields.telephone":  27,
	"forms.appeal.fields.tg_account": 28,
	"forms.appeal.fields.tg_id":      29,

	"database.path": "storage.db",

	"state.backend":           "sqlite",
	"state.ttl":               30 * time.Minute,
	"state.valkey.addr":       "",
	"state.valkey.password":   "",
	"state.valkey.db":         0,
	"state.valkey.key_prefix": "tgbridge",

	"scheduler.tasks.state_cleanup.enabled":    true,
	"scheduler.tasks.state_cleanup.schedule":   "0 */5 * * * *",
	"scheduler.tasks.sql_maintenance.enabled":  true,
	"scheduler.tasks.sql_maintenance.schedule": "0 30 3 * * *",

	"messages.welcome":             "Здравствуйте! Напишите ваш вопрос, и мы ответим в этом чате.",
	"messages.not_registered":      "Вы не зарегистрированы. Пожалуйста, зарегистрируйтесь, чтобы продолжить.",
	"messages.register_button":     "Зарегистрироваться",
	"messages.ask_full_name":       "Пожалуйста, введите ваше полное имя:",
	"messages.ask_full_name_retry": "Ошибка: не удалось получить ваше имя. Пожалуйста, введите повторно ваше полное имя:",
	"messages.ask_telephone":       "Пожалуйста, введите ваш номер телефона:",
	"messages.ask_telephone_retry": "Ошибка: не удалось получить ваш номер телефона. Пожалуйста, введите ваш номер телефона:",
	"messages.registration_thanks": "Спасибо за регистрацию, {name}!",
	"messages.registration_error":  "Ошибка при попытке регистрации. Пожалуйста, попробуйте позже.",
	"messages.appeal_error":        "Ошибка при создании обращения. Пожалуйста, попробуйте позже.",
	"messages.general_error":       "Ошибка при обработке запроса. Пожалуйста, попробуйте позже.",
	"messages.file_error":          "Произошла ошибка при обработке данного файла. Попробуйте еще раз.",
	"messages.file_too_large":      "⚠️ Файл слишком большой! Максимум 20МБ",
	"messages.chat_opened":         "Чат открыт.",
	"messages.default_full_name":   "Пользователь",
	"messages.default_unknown":     "Не указан",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
