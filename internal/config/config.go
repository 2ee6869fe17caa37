package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// WhatsApp Business API
	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppAppSecret     string
	WebhookVerifyToken    string

	// OpenAI
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIMaxTokens   int
	OpenAITemperature float32
	OpenAITimeout     time.Duration

	// FAQ matching
	FAQFilePath    string
	MatchThreshold float64
	MaxFAQResults  int

	// Bot behavior
	SessionTimeout   time.Duration
	MaxMessageLength int
	DedupMaxIDs      int
	DedupWindow      time.Duration
	UserRateLimit    int // messages per user per hour

	// Server
	ServerPort  string
	LogLevel    string
	Environment string
	ServiceName string
}

// LoadConfig reads configuration from the environment. Missing required
// values are startup-fatal and reported as errors.
func LoadConfig() (*Config, error) {
	whatsappToken := os.Getenv("WHATSAPP_TOKEN")
	if whatsappToken == "" {
		return nil, fmt.Errorf("WHATSAPP_TOKEN is required")
	}

	phoneNumberID := os.Getenv("WHATSAPP_PHONE_NUMBER_ID")
	if phoneNumberID == "" {
		return nil, fmt.Errorf("WHATSAPP_PHONE_NUMBER_ID is required")
	}

	verifyToken := os.Getenv("WEBHOOK_VERIFY_TOKEN")
	if verifyToken == "" {
		return nil, fmt.Errorf("WEBHOOK_VERIFY_TOKEN is required")
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	openAIModel := os.Getenv("OPENAI_MODEL")
	if openAIModel == "" {
		openAIModel = "gpt-3.5-turbo"
	}

	maxTokens, err := intEnv("OPENAI_MAX_TOKENS", 500)
	if err != nil {
		return nil, err
	}

	temperature := float32(0.7)
	if t := os.Getenv("OPENAI_TEMPERATURE"); t != "" {
		parsed, err := strconv.ParseFloat(t, 32)
		if err != nil {
			return nil, fmt.Errorf("OPENAI_TEMPERATURE is invalid: %w", err)
		}
		temperature = float32(parsed)
	}

	openAITimeout, err := durationEnv("OPENAI_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, err
	}

	faqFilePath := os.Getenv("FAQ_FILE_PATH")
	if faqFilePath == "" {
		faqFilePath = "data/faq.json"
	}

	matchThreshold := 0.35
	if mt := os.Getenv("MATCH_THRESHOLD"); mt != "" {
		parsed, err := strconv.ParseFloat(mt, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			return nil, fmt.Errorf("MATCH_THRESHOLD must be a number in [0,1]")
		}
		matchThreshold = parsed
	}

	maxFAQResults, err := intEnv("MAX_FAQ_RESULTS", 3)
	if err != nil {
		return nil, err
	}

	sessionTimeoutSec, err := intEnv("SESSION_TIMEOUT", 3600)
	if err != nil {
		return nil, err
	}

	maxMessageLength, err := intEnv("MAX_MESSAGE_LENGTH", 4096)
	if err != nil {
		return nil, err
	}

	dedupMaxIDs, err := intEnv("DEDUP_MAX_IDS", 500)
	if err != nil {
		return nil, err
	}

	dedupWindow, err := durationEnv("DEDUP_WINDOW", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	userRateLimit, err := intEnv("USER_RATE_LIMIT", 10)
	if err != nil {
		return nil, err
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	serviceName := os.Getenv("SERVICE_NAME")
	if serviceName == "" {
		serviceName = "whatsapp-faq-bot"
	}

	return &Config{
		WhatsAppToken:         whatsappToken,
		WhatsAppPhoneNumberID: phoneNumberID,
		WhatsAppAppSecret:     os.Getenv("WHATSAPP_APP_SECRET"),
		WebhookVerifyToken:    verifyToken,
		OpenAIAPIKey:          openAIKey,
		OpenAIModel:           openAIModel,
		OpenAIMaxTokens:       maxTokens,
		OpenAITemperature:     temperature,
		OpenAITimeout:         openAITimeout,
		FAQFilePath:           faqFilePath,
		MatchThreshold:        matchThreshold,
		MaxFAQResults:         maxFAQResults,
		SessionTimeout:        time.Duration(sessionTimeoutSec) * time.Second,
		MaxMessageLength:      maxMessageLength,
		DedupMaxIDs:           dedupMaxIDs,
		DedupWindow:           dedupWindow,
		UserRateLimit:         userRateLimit,
		ServerPort:            serverPort,
		LogLevel:              logLevel,
		Environment:           environment,
		ServiceName:           serviceName,
	}, nil
}

func intEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return parsed, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration (e.g. 30s, 10m)", name)
	}
	return parsed, nil
}
