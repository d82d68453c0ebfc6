package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/caiwatch/caiwatch/agent/internal/compute"
	"github.com/caiwatch/caiwatch/agent/internal/openweather"
)

const timeLayout = "2006-01-02 15:04"

func tempUnit(units string) string {
	switch units {
	case "imperial":
		return "°F"
	case "standard":
		return "K"
	default:
		return "°C"
	}
}

// writeReport prints the current conditions, the CAI breakdown at cur, and
// one row per hour of timeline.
func writeReport(w io.Writer, units string, b *openweather.Bundle, cur *compute.Result, timeline []*compute.Result) {
	oc := b.OneCall
	name := b.Location.Name
	if name == "" {
		name = b.Location.ID
	}
	source := "live"
	if b.Cached {
		source = "cached"
	}
	fmt.Fprintf(w, "%s (%.4f, %.4f) %s, %s data\n", name, b.Location.Lat, b.Location.Lon, oc.Timezone, source)

	c := oc.Current
	if c.Dt != 0 {
		u := tempUnit(units)
		fmt.Fprintf(w, "  weather  %s  %s  %.1f%s (feels %.1f%s)  humidity %.0f%%  wind %.1f\n",
			oc.LocalTime(c.Dt).Format(timeLayout), c.Summary(), c.Temp, u, c.FeelsLike, u, c.Humidity, c.WindSpeed)
	}

	at := oc.LocalTime(cur.Timestamp.Unix()).Format(timeLayout)
	if cur.State == compute.StateUnknown {
		fmt.Fprintf(w, "  CAI      %s  unknown: %s\n\n", at, cur.ErrorMessage)
	} else {
		fmt.Fprintf(w, "  CAI      %s  %.0f %s (worst %s, %d bad)%s\n",
			at, cur.CAI, cur.State, cur.Worst, cur.BadPollutants, forecastMark(cur))

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "\tpollutant\tconcentration\tscore\tlevel\t")
		for _, si := range cur.SubIndices {
			fmt.Fprintf(tw, "\t%s\t%s\t%.0f\t%s\t\n", si.Pollutant, formatConc(si), si.Score, si.Level)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(timeline) == 0 {
		return
	}

	aqi := make(map[int64]openweather.AirEntry)
	if b.Forecast != nil {
		for _, e := range b.Forecast.List {
			aqi[e.Dt] = e
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  time\towm aqi\tcai\tlevel\tworst\to3\tpm10\tpm2.5")
	for _, r := range timeline {
		e, ok := aqi[r.Timestamp.Unix()]
		owm, o3, pm10, pm25 := "-", "-", "-", "-"
		if ok {
			owm = openweather.AQILabel(e.Main.AQI)
			o3 = fmt.Sprintf("%.1f", e.Components.O3)
			pm10 = fmt.Sprintf("%.1f", e.Components.PM10)
			pm25 = fmt.Sprintf("%.1f", e.Components.PM25)
		}
		cai, worst := "-", "-"
		if r.State != compute.StateUnknown {
			cai = fmt.Sprintf("%.0f", r.CAI)
			worst = string(r.Worst)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			oc.LocalTime(r.Timestamp.Unix()).Format(timeLayout), owm, cai, r.State, worst, o3, pm10, pm25)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func forecastMark(r *compute.Result) string {
	if r.Forecast {
		return " [forecast]"
	}
	return ""
}

// formatConc shows gases in ppm and particulates in µg/m³.
func formatConc(si compute.SubIndex) string {
	if si.Pollutant.IsGas() {
		return fmt.Sprintf("%.3f ppm", si.Concentration)
	}
	return fmt.Sprintf("%.1f µg/m³", si.Concentration)
}

