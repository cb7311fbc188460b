package main

import (
	"github.com/salini0110200/lockbot/internal/configstore"
	"github.com/salini0110200/lockbot/internal/conversation"
	"github.com/salini0110200/lockbot/internal/engine"
	"github.com/salini0110200/lockbot/internal/policy"
	"github.com/salini0110200/lockbot/internal/supervisor"
	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)

	// Dashboard
	viper.SetDefault("server.listen", ":20018")
	viper.SetDefault("server.auth_token", "")

	// Persistence
	viper.SetDefault("state.dir", "~/.lockbot")
	viper.SetDefault("state.config_file", "config.json")
	viper.SetDefault("storage.backend", "file")
	viper.SetDefault("storage.redis_url", "redis://localhost:6379/0")
	viper.SetDefault("storage.redis_key", configstore.DefaultRedisKey)

	// Session bridge
	viper.SetDefault("bridge.url", "ws://127.0.0.1:20019/session")
	viper.SetDefault("bridge.auth_token", "")
	viper.SetDefault("bridge.call_timeout", "30s")

	// Bot
	viper.SetDefault("bot.nickname", policy.DefaultBotNickname)
	viper.SetDefault("bot.prefix", policy.DefaultPrefix)
	viper.SetDefault("replies.file", "")
	viper.SetDefault("engine.debounce_window", conversation.DefaultDebounceWindow)
	viper.SetDefault("engine.nickname_pace", engine.DefaultNicknamePace)

	// Supervisor
	viper.SetDefault("supervisor.login_retry_delay", supervisor.DefaultLoginRetryDelay)
	viper.SetDefault("supervisor.reconnect_delay", supervisor.DefaultReconnectDelay)
	viper.SetDefault("supervisor.settle_delay", supervisor.DefaultSettleDelay)
	viper.SetDefault("supervisor.restore_pace", supervisor.DefaultRestorePace)
	viper.SetDefault("supervisor.flush_interval", supervisor.DefaultFlushInterval)
}
