// Package signal maps indicator values to discrete labels.
package signal

// Position is where the price sits relative to a moving average.
type Position string

const (
	Above Position = "Above"
	Below Position = "Below"
	At    Position = "At"
)

// ClassifyMA compares price against a moving-average value with exact
// equality.
func ClassifyMA(price, value float64) Position {
	switch {
	case price > value:
		return Above
	case price < value:
		return Below
	}
	return At
}

// Zone is the RSI regime.
type Zone string

const (
	Overbought Zone = "Overbought"
	Oversold   Zone = "Oversold"
	Neutral    Zone = "Neutral"
)

// Bands holds the RSI thresholds. Both bounds are inclusive.
type Bands struct {
	Overbought float64 `yaml:"overbought" json:"overbought"`
	Oversold   float64 `yaml:"oversold" json:"oversold"`
}

// DefaultBands is the conventional 70/30 split.
func DefaultBands() Bands { return Bands{Overbought: 70, Oversold: 30} }

// ClassifyRSI returns Overbought at or above the upper band, Oversold at or
// below the lower band, otherwise Neutral.
func (b Bands) ClassifyRSI(v float64) Zone {
	switch {
	case v >= b.Overbought:
		return Overbought
	case v <= b.Oversold:
		return Oversold
	}
	return Neutral
}

// ClassifyRSI classifies with the default 70/30 bands.
func ClassifyRSI(v float64) Zone { return DefaultBands().ClassifyRSI(v) }

// Trend is an aggregate direction label.
type Trend string

const (
	StrongBullish Trend = "Strong Bullish"
	Bullish       Trend = "Bullish"
	TrendNeutral  Trend = "Neutral"
	Bearish       Trend = "Bearish"
	StrongBearish Trend = "Strong Bearish"
	Unknown       Trend = "Unknown"
)

// MA is a moving-average value that may be absent.
type MA struct {
	Value float64
	OK    bool
}

// TrendFromMAs scores how many present moving averages the price is above.
// Absent values are left out of both counts; with none present the trend is
// Unknown.
func TrendFromMAs(price float64, mas []MA) Trend {
	present, above := 0, 0
	for _, m := range mas {
		if !m.OK {
			continue
		}
		present++
		if price > m.Value {
			above++
		}
	}
	if present == 0 {
		return Unknown
	}
	ratio := float64(above) / float64(present)
	switch {
	case ratio >= 0.8:
		return StrongBullish
	case ratio >= 0.6:
		return Bullish
	case ratio >= 0.4:
		return TrendNeutral
	case ratio >= 0.2:
		return Bearish
	}
	return StrongBearish
}

// Crossover labels a fast/slow average pair: Bullish when fast is above slow,
// Bearish when below, Neutral when equal. Unknown if either is absent.
func Crossover(fast, slow MA) Trend {
	if !fast.OK || !slow.OK {
		return Unknown
	}
	switch {
	case fast.Value > slow.Value:
		return Bullish
	case fast.Value < slow.Value:
		return Bearish
	}
	return TrendNeutral
}
