package openweather

import (
	"time"

	"github.com/caiwatch/caiwatch/agent/internal/compute"
)

// OneCall is the subset of the /data/2.5/onecall response used by the agent.
type OneCall struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	Timezone       string    `json:"timezone"`
	TimezoneOffset int       `json:"timezone_offset"` // seconds east of UTC
	Current        Current   `json:"current"`
	Hourly         []Current `json:"hourly"`
}

// Current is one point of weather conditions.
type Current struct {
	Dt         int64       `json:"dt"`
	Temp       float64     `json:"temp"`
	FeelsLike  float64     `json:"feels_like"`
	Pressure   float64     `json:"pressure"`
	Humidity   float64     `json:"humidity"`
	UVI        float64     `json:"uvi"`
	Clouds     float64     `json:"clouds"`
	Visibility float64     `json:"visibility"`
	WindSpeed  float64     `json:"wind_speed"`
	WindDeg    float64     `json:"wind_deg"`
	Pop        float64     `json:"pop"` // probability of precipitation, hourly only
	Weather    []Condition `json:"weather"`
}

// Condition is an OpenWeather weather condition code with its description.
type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Summary returns the first condition's description, or "".
func (c Current) Summary() string {
	if len(c.Weather) == 0 {
		return ""
	}
	return c.Weather[0].Description
}

// Location returns the zone of the onecall response's timezone offset.
func (o *OneCall) Location() *time.Location {
	name := o.Timezone
	if name == "" {
		name = "UTC"
	}
	return time.FixedZone(name, o.TimezoneOffset)
}

// LocalTime converts a unix timestamp to the response's local time.
func (o *OneCall) LocalTime(unix int64) time.Time {
	return time.Unix(unix, 0).In(o.Location())
}

// AirPollution is the /data/2.5/air_pollution/{forecast,history} response.
type AirPollution struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	List []AirEntry `json:"list"`
}

// AirEntry is one hourly air pollution measurement or forecast.
type AirEntry struct {
	Dt   int64 `json:"dt"`
	Main struct {
		AQI int `json:"aqi"` // OpenWeather's own 1..5 index
	} `json:"main"`
	Components Components `json:"components"`
}

// Components holds pollutant concentrations in µg/m³.
type Components struct {
	CO   float64 `json:"co"`
	NO   float64 `json:"no"`
	NO2  float64 `json:"no2"`
	O3   float64 `json:"o3"`
	SO2  float64 `json:"so2"`
	PM25 float64 `json:"pm2_5"`
	PM10 float64 `json:"pm10"`
	NH3  float64 `json:"nh3"`
}

// Sample converts e to a compute.Sample.
func (e AirEntry) Sample(forecast bool) compute.Sample {
	return compute.Sample{
		Time:     time.Unix(e.Dt, 0).UTC(),
		SO2:      e.Components.SO2,
		CO:       e.Components.CO,
		O3:       e.Components.O3,
		NO2:      e.Components.NO2,
		PM10:     e.Components.PM10,
		PM25:     e.Components.PM25,
		Forecast: forecast,
	}
}

// AQILabel names OpenWeather's 1..5 air quality index.
func AQILabel(aqi int) string {
	switch aqi {
	case 1:
		return "Good"
	case 2:
		return "Fair"
	case 3:
		return "Moderate"
	case 4:
		return "Poor"
	case 5:
		return "Very Poor"
	default:
		return "Unknown"
	}
}
