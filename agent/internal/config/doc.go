// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent, OpenWeather, Locations, Alerts}: full tree parsed from YAML
//   - AgentConfig: refresh_interval, cache_dir, compress_cache, http_port,
//     textfile_path, snapshot_ttl, log_level, log_format
//   - OpenWeatherConfig: base_url, api_key_env, air_key_env, units, lang,
//     timeout; APIKey() and AirKey() resolve from environment variables
//   - Location: id, name, lat, lon
//   - AlertsConfig, AlertRule, WebhookConfig: threshold rules and targets
//
// Load(path) loads .env (godotenv, optional), reads the YAML file, applies
// defaults (10m refresh, .cache, metric/kr, 10s timeout), applies CAIWATCH_*
// environment overrides to the agent section (envconfig), then validates with
// struct tags (validator) and hand-written enum checks.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory to detect
// saves, including the rename→create pattern of atomic-save editors, and
// calls onChange with the newly parsed Config.
package config
