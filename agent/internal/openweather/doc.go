// Package openweather fetches weather and air pollution data from the
// OpenWeather API and caches the raw responses on disk.
//
// Client (client.go) wraps an *http.Client whose round tripper injects the
// appid key (a separate key may be configured for the air pollution
// endpoints) and a gobreaker circuit breaker so a failing upstream is not
// hammered on every refresh.
//
// Loader (loader.go) implements fetch-or-load: with refresh it fetches the
// onecall, air pollution forecast and air pollution history endpoints
// concurrently and writes the bodies to the location's cache directory;
// without refresh it decodes the cached files. Cached files are optionally
// zstd-compressed (cache.go).
//
// Bundle.Samples converts air pollution entries into compute.Sample values
// for the CAI engine.
package openweather
