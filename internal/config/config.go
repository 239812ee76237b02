package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is resolved once at startup and injected into components; nothing
// reads ambient environment at request time.
type Config struct {
	DBSource     string
	Port         string
	Env          string
	AppID        string
	AdminSecret  string
	SendGridKey  string
	SenderName   string
	SenderEmail  string
	PollInterval time.Duration
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	adminSecret := os.Getenv("ADMIN_SECRET")
	if adminSecret == "" {
		return nil, fmt.Errorf("ADMIN_SECRET environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	appID := os.Getenv("APP_ID")
	if appID == "" {
		appID = "pragyanalpha"
	}

	senderName := os.Getenv("SENDER_NAME")
	if senderName == "" {
		senderName = "Pragyan AI"
	}

	senderEmail := os.Getenv("SENDER_EMAIL")
	if senderEmail == "" {
		senderEmail = "receipts@pragyanalpha.org"
	}

	pollSec := 5
	if v := os.Getenv("WATCH_POLL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("WATCH_POLL_SECONDS must be a positive integer")
		}
		pollSec = n
	}

	return &Config{
		DBSource:     dbSource,
		Port:         port,
		Env:          env,
		AppID:        appID,
		AdminSecret:  adminSecret,
		SendGridKey:  os.Getenv("SENDGRID_API_KEY"),
		SenderName:   senderName,
		SenderEmail:  senderEmail,
		PollInterval: time.Duration(pollSec) * time.Second,
	}, nil
}
