package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ==================== 配置结构 ====================

// Config 进程配置，加载后只读
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`
	Retry  RetryConfig  `mapstructure:"retry"`
	Sheet  SheetConfig  `mapstructure:"sheet"`
	Notify NotifyConfig `mapstructure:"notify"`

	// 以下按运行模式单独校验
	Imweb      ImwebConfig      `mapstructure:"imweb" validate:"-"`
	Aligo      AligoConfig      `mapstructure:"aligo" validate:"-"`
	DirectSend DirectSendConfig `mapstructure:"ds" validate:"-"`

	// SyncToken /internal/* 接口的访问令牌
	SyncToken string `mapstructure:"sync_token"`
	// Timezone 日期计算使用的时区
	Timezone string `mapstructure:"timezone" validate:"required"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port" validate:"required,numeric"`
	ManualCooldown time.Duration `mapstructure:"manual_cooldown" validate:"gte=0"`
	GinMode        string        `mapstructure:"gin_mode" validate:"omitempty,oneof=debug release test"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json console"`
}

type DBConfig struct {
	DSN   string `mapstructure:"dsn" validate:"required"`
	Debug bool   `mapstructure:"debug"`
}

type CronConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Spec    string `mapstructure:"spec" validate:"required_if=Enabled true"`
	// TokenSpec 令牌保活
	TokenSpec string `mapstructure:"token_spec"`
	// Timeout 定时任务单轮上限
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// RetentionSpec 运行记录清理，为空时不清理
	RetentionSpec string        `mapstructure:"retention_spec"`
	Retention     time.Duration `mapstructure:"retention" validate:"gte=0"`
}

// RetryConfig 出站调用的重试策略
type RetryConfig struct {
	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"gt=0"`

	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	MaxJitter   time.Duration `mapstructure:"max_jitter" validate:"gte=0"`

	// 表格读取量大，单独配置
	SheetReadAttempts   int           `mapstructure:"sheet_read_attempts" validate:"gte=1"`
	SheetReadBaseDelay  time.Duration `mapstructure:"sheet_read_base_delay" validate:"gte=0"`
	SheetWriteAttempts  int           `mapstructure:"sheet_write_attempts" validate:"gte=1"`
	SheetWriteBaseDelay time.Duration `mapstructure:"sheet_write_base_delay" validate:"gte=0"`
}

type SheetConfig struct {
	Backend         string `mapstructure:"backend" validate:"required,oneof=google memory"`
	ID              string `mapstructure:"id" validate:"required_if=Backend google"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	StoreTab        string `mapstructure:"store_tab" validate:"required"`
	LedgerTab       string `mapstructure:"ledger_tab" validate:"required"`
}

type NotifyConfig struct {
	// Provider 为空表示不发送
	Provider  string `mapstructure:"provider" validate:"omitempty,oneof=aligo directsend"`
	Policy    string `mapstructure:"policy" validate:"omitempty,oneof=abort continue"`
	BatchSize int    `mapstructure:"batch_size" validate:"gte=0"`
}

type ImwebConfig struct {
	BaseURL      string `mapstructure:"base_url" validate:"required,url"`
	SiteCode     string `mapstructure:"site_code" validate:"required"`
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	RefreshToken string `mapstructure:"refresh_token"`
	PageLimit    int    `mapstructure:"page_limit" validate:"gte=1,lte=100"`
}

type AligoConfig struct {
	BaseURL    string `mapstructure:"base_url" validate:"required,url"`
	APIKey     string `mapstructure:"api_key" validate:"required"`
	UserID     string `mapstructure:"user_id" validate:"required"`
	SenderKey  string `mapstructure:"senderkey" validate:"required"`
	TplCode    string `mapstructure:"tpl_code" validate:"required"`
	Sender     string `mapstructure:"sender" validate:"required"`
	Subject    string `mapstructure:"subject"`
	Emtitle    string `mapstructure:"emtitle"`
	Message    string `mapstructure:"message"`
	ButtonName string `mapstructure:"button_name"`
	ButtonURL  string `mapstructure:"button_url"`
	TestMode   bool   `mapstructure:"test_mode"`
}

type DirectSendConfig struct {
	BaseURL    string `mapstructure:"base_url" validate:"required,url"`
	Username   string `mapstructure:"username" validate:"required"`
	APIKey     string `mapstructure:"api_key" validate:"required"`
	PlusID     string `mapstructure:"plus_id" validate:"required"`
	TemplateNo string `mapstructure:"template_no" validate:"required"`
}

// ==================== 默认值 ====================

var defaults = map[string]interface{}{
	"server.port":            "8080",
	"server.manual_cooldown": 30 * time.Second,
	"server.gin_mode":        "release",

	"log.level":  "info",
	"log.format": "json",

	"db.dsn":   "ordersync.db",
	"db.debug": false,

	"cron.enabled":        true,
	"cron.spec":           "0 */10 * * * *",
	"cron.token_spec":     "0 0/40 * * * *",
	"cron.timeout":        10 * time.Minute,
	"cron.retention_spec": "0 30 4 * * *",
	"cron.retention":      30 * 24 * time.Hour,

	"retry.http_timeout":           15 * time.Second,
	"retry.max_attempts":           5,
	"retry.base_delay":             600 * time.Millisecond,
	"retry.max_jitter":             400 * time.Millisecond,
	"retry.sheet_read_attempts":    8,
	"retry.sheet_read_base_delay":  800 * time.Millisecond,
	"retry.sheet_write_attempts":   6,
	"retry.sheet_write_base_delay": 700 * time.Millisecond,

	"sheet.backend":    "google",
	"sheet.store_tab":  "통합시트",
	"sheet.ledger_tab": "주문번호",

	"notify.policy":     "continue",
	"notify.batch_size": 0,

	"imweb.base_url":   "https://openapi.imweb.me",
	"imweb.page_limit": 100,

	"aligo.base_url":    "https://kakaoapi.aligo.in",
	"aligo.button_name": "신청서 작성",

	"ds.base_url": "https://directsend.co.kr",

	"timezone": "Asia/Seoul",
}

// 没有默认值、只从环境变量读取的键
var envOnly = []string{
	"sheet.id",
	"sheet.credentials_json",
	"sheet.endpoint",
	"notify.provider",
	"imweb.site_code",
	"imweb.client_id",
	"imweb.client_secret",
	"imweb.redirect_uri",
	"imweb.refresh_token",
	"aligo.api_key",
	"aligo.user_id",
	"aligo.senderkey",
	"aligo.tpl_code",
	"aligo.sender",
	"aligo.subject",
	"aligo.emtitle",
	"aligo.message",
	"aligo.button_url",
	"aligo.test_mode",
	"ds.username",
	"ds.api_key",
	"ds.plus_id",
	"ds.template_no",
	"sync_token",
}

// 兼容旧部署使用的环境变量名
var aliases = map[string][]string{
	"sheet.credentials_file": {"SHEET_CREDENTIALS_FILE", "GOOGLE_SHEET_CREDENTIAL"},
	"db.dsn":                 {"DB_DSN", "DATABASE_URL"},
}

// ==================== 加载 ====================

// Load 读取配置: 默认值 < 配置文件 < 环境变量
// path 为空时在当前目录和 ./config 下查找 config.yaml，找不到不算错误
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envOnly {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", k, err)
		}
	}
	for k, names := range aliases {
		if err := v.BindEnv(append([]string{k}, names...)...); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Notify.Provider = strings.ToLower(strings.TrimSpace(c.Notify.Provider))
	c.Notify.Policy = strings.ToLower(strings.TrimSpace(c.Notify.Policy))
	c.Sheet.Backend = strings.ToLower(strings.TrimSpace(c.Sheet.Backend))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Imweb.BaseURL = strings.TrimRight(c.Imweb.BaseURL, "/")
}

// ==================== 校验 ====================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误信息里使用配置键名
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate 校验与运行模式无关的配置
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return wrapValidation("", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("无效的时区 %q: %w", c.Timezone, err)
	}
	return nil
}

// ValidateSync 同步模式需要 imweb 与表格凭证
func (c *Config) ValidateSync() error {
	if err := validate.Struct(c.Imweb); err != nil {
		return wrapValidation("imweb", err)
	}
	if c.Sheet.Backend == "google" && c.Sheet.CredentialsJSON == "" && c.Sheet.CredentialsFile == "" {
		return errors.New("配置缺失: SHEET_CREDENTIALS_JSON 或 GOOGLE_SHEET_CREDENTIAL")
	}
	return nil
}

// ValidateNotify 已配置服务商时校验其凭证
func (c *Config) ValidateNotify() error {
	switch c.Notify.Provider {
	case "aligo":
		if err := validate.Struct(c.Aligo); err != nil {
			return wrapValidation("aligo", err)
		}
	case "directsend":
		if err := validate.Struct(c.DirectSend); err != nil {
			return wrapValidation("ds", err)
		}
	}
	return nil
}

// Location 日期计算时区
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// wrapValidation 把校验错误转成环境变量名
func wrapValidation(prefix string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := configKey(prefix, fe.Namespace())
		env := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if fe.Tag() == "required" || fe.Tag() == "required_if" {
			msgs = append(msgs, fmt.Sprintf("%s 未配置", env))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s 无效 (%s=%s, 当前值 %v)", env, fe.Tag(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("配置校验失败: %s", strings.Join(msgs, "; "))
}

// configKey "Config.server.port" -> "server.port"
func configKey(prefix, namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	if prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, ".")
}
