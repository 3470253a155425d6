package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"rde-engine/internal/markethours"
	"rde-engine/internal/pipeline"
)

// printTimeline renders the timeline as an aligned table, one block per
// trading day, followed by the latest levels against the last price.
func printTimeline(w io.Writer, tl *pipeline.Timeline, session markethours.Session) error {
	if len(tl.Rows) == 0 {
		_, err := fmt.Fprintf(w, "%s: no candles in range\n", tl.Symbol)
		return err
	}

	headers := []string{"TIME", "PRICE (CHANGE)"}
	for _, c := range tl.Columns {
		headers = append(headers, strings.ToUpper(strings.ReplaceAll(c, "_", "-")))
	}
	headers = append(headers, "TREND")

	fmt.Fprintf(w, "%s - Moving Averages\n", tl.Symbol)
	fmt.Fprintf(w, "Session: %s - %s\n", markethours.FormatClock(session.Open), markethours.FormatClock(session.Close))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	day := ""
	for i, row := range tl.Rows {
		ts := row.TS.In(session.Loc)
		if d := ts.Format("2006-01-02 Mon"); d != day {
			day = d
			fmt.Fprintf(tw, "\n%s\n", day)
			fmt.Fprintln(tw, strings.Join(headers, "\t"))
		}

		var prev *float64
		if i > 0 {
			prev = &tl.Rows[i-1].Price
		}
		cells := []string{ts.Format("15:04"), priceChange(row.Price, prev)}
		for _, v := range row.Values {
			cells = append(cells, optional(v))
		}
		cells = append(cells, string(row.Trend))
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	last := tl.Rows[len(tl.Rows)-1]
	fmt.Fprintf(w, "\nCurrent price: %.2f\nTrend: %s\n", last.Price, last.Trend)
	for i, c := range tl.Columns {
		v := last.Values[i]
		name := strings.ToUpper(strings.ReplaceAll(c, "_", "-"))
		if v == nil {
			fmt.Fprintf(w, "%s: not enough data\n", name)
			continue
		}
		pct := (last.Price - *v) / *v * 100
		status := "At"
		switch {
		case pct > 0:
			status = "Above"
		case pct < 0:
			status = "Below"
			pct = -pct
		}
		fmt.Fprintf(w, "%s: %.2f (%s by %.2f%%)\n", name, *v, status, pct)
	}
	return nil
}

func priceChange(price float64, prev *float64) string {
	if prev == nil || *prev == 0 {
		return fmt.Sprintf("%.2f", price)
	}
	pct := (price - *prev) / *prev * 100
	arrow := "="
	switch {
	case price > *prev:
		arrow = "▲"
	case price < *prev:
		arrow = "▼"
	}
	return fmt.Sprintf("%s %.2f (%+.2f%%)", arrow, price, pct)
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
