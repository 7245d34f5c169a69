package main

import (
	"io"
	"time"
)

// Options is the root command. The struct tags are interpreted by
// github.com/jessevdk/go-flags.
type Options struct {
	Call  *CallCmd  `command:"call"  description:"Dispatch one call for an A/B group"`
	Batch *BatchCmd `command:"batch" description:"Dispatch calls listed in a YAML file, in order"`
	Login *LoginCmd `command:"login" description:"Check webhook login"`
	Token *TokenCmd `command:"token" description:"Mint an API access token"`
}

func newOptions(out io.Writer) *Options {
	return &Options{
		Call:  &CallCmd{out: out},
		Batch: &BatchCmd{out: out},
		Login: &LoginCmd{out: out},
		Token: &TokenCmd{out: out},
	}
}

// WebhookFlags are shared by every command that talks to the webhook.
type WebhookFlags struct {
	BaseURL       string        `long:"webhook-url" env:"WEBHOOK_BASE_URL" description:"workflow webhook base URL"`
	APIKey        string        `long:"api-key" env:"WEBHOOK_API_KEY" description:"webhook bearer key"`
	Timeout       time.Duration `long:"timeout" env:"WEBHOOK_TIMEOUT" default:"15s" description:"per-request timeout"`
	StrictSuccess bool          `long:"strict-success" env:"WEBHOOK_STRICT_SUCCESS" description:"treat replies without success as failures"`
	LogEnv        string        `long:"log-env" env:"APP_ENV" default:"local" description:"logger environment"`
}

type RouteFlags struct {
	RoutesPath string `long:"routes" env:"ROUTING_TABLE_PATH" description:"YAML group table (defaults to the built-in A/B table)"`
}
