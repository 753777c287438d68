package indicator

import (
	"math"

	"github.com/candlebot/candlebot/pkg/core"
)

// Candlestick pattern detectors. Each one writes a boolean column whose
// row i is computed from a fixed number of preceding rows; rows without
// enough history are false, like the NaN comparisons in the reference
// formulas.

// AddCandlePatterns appends all pattern columns.
func AddCandlePatterns(df *core.Dataframe) {
	AddCandleHammer(df)
	AddCandleInvertedHammer(df)
	AddCandleShootingStar(df)
	AddCandleHangingMan(df)
	AddCandleThreeWhiteSoldiers(df)
	AddCandleThreeBlackCrows(df)
	AddCandleDoji(df)
	AddCandleThreeLineStrike(df)
	AddCandleTwoBlackGapping(df)
	AddCandleMorningStar(df)
	AddCandleEveningStar(df)
	AddCandleAbandonedBaby(df)
	AddCandleMorningDojiStar(df)
	AddCandleEveningDojiStar(df)
	AddCandleAstralBuy(df)
	AddCandleAstralSell(df)
}

func pattern(df *core.Dataframe, name string, minShift int, detect func(i int) bool) {
	out := make([]bool, df.Len())
	for i := minShift; i < df.Len(); i++ {
		out[i] = detect(i)
	}
	df.Flags[name] = out
}

func AddCandleHammer(df *core.Dataframe) {
	o, h, l, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "hammer", 0, func(i int) bool {
		body := h[i] - l[i]
		return body > 3*(o[i]-c[i]) &&
			(c[i]-l[i])/(0.001+body) > 0.6 &&
			(o[i]-l[i])/(0.001+body) > 0.6
	})
}

func AddCandleInvertedHammer(df *core.Dataframe) {
	o, h, l, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "inverted_hammer", 0, func(i int) bool {
		body := h[i] - l[i]
		return body > 3*(o[i]-c[i]) &&
			(h[i]-c[i])/(0.001+body) > 0.6 &&
			(h[i]-o[i])/(0.001+body) > 0.6
	})
}

func AddCandleShootingStar(df *core.Dataframe) {
	o, h, l, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "shooting_star", 1, func(i int) bool {
		return o[i-1] < c[i-1] && c[i-1] < o[i] &&
			h[i]-math.Max(o[i], c[i]) >= math.Abs(o[i]-c[i])*3 &&
			math.Min(c[i], o[i])-l[i] <= math.Abs(o[i]-c[i])
	})
}

func AddCandleHangingMan(df *core.Dataframe) {
	o, h, l, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "hanging_man", 2, func(i int) bool {
		body := h[i] - l[i]
		return body > 4*(o[i]-c[i]) &&
			(c[i]-l[i])/(0.001+body) >= 0.75 &&
			(o[i]-l[i])/(0.001+body) >= 0.75 &&
			h[i-1] < o[i] && h[i-2] < o[i]
	})
}

func AddCandleThreeWhiteSoldiers(df *core.Dataframe) {
	o, h, _, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "three_white_soldiers", 2, func(i int) bool {
		return o[i] > o[i-1] && o[i] < c[i-1] &&
			c[i] > h[i-1] &&
			h[i]-math.Max(o[i], c[i]) < math.Abs(o[i]-c[i]) &&
			o[i-1] > o[i-2] && o[i-1] < c[i-2] &&
			c[i-1] > h[i-2] &&
			h[i-1]-math.Max(o[i-1], c[i-1]) < math.Abs(o[i-1]-c[i-1])
	})
}

func AddCandleThreeBlackCrows(df *core.Dataframe) {
	o, _, l, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "three_black_crows", 2, func(i int) bool {
		return o[i] < o[i-1] && o[i] > c[i-1] &&
			c[i] < l[i-1] &&
			l[i]-math.Max(o[i], c[i]) < math.Abs(o[i]-c[i]) &&
			o[i-1] < o[i-2] && o[i-1] > c[i-2] &&
			c[i-1] < l[i-2] &&
			l[i-1]-math.Max(o[i-1], c[i-1]) < math.Abs(o[i-1]-c[i-1])
	})
}

func AddCandleDoji(df *core.Dataframe) {
	o, h, l, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "doji", 0, func(i int) bool {
		body := math.Abs(c[i] - o[i])
		return body/(h[i]-l[i]) < 0.1 &&
			h[i]-math.Max(c[i], o[i]) > 3*body &&
			math.Min(c[i], o[i])-l[i] > 3*body
	})
}

func AddCandleThreeLineStrike(df *core.Dataframe) {
	o, h, l, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "three_line_strike", 3, func(i int) bool {
		return o[i-1] < o[i-2] && o[i-1] > c[i-2] &&
			c[i-1] < l[i-2] &&
			l[i-1]-math.Max(o[i-1], c[i-1]) < math.Abs(o[i-1]-c[i-1]) &&
			o[i-2] < o[i-3] && o[i-2] > c[i-3] &&
			c[i-2] < l[i-3] &&
			l[i-2]-math.Max(o[i-2], c[i-2]) < math.Abs(o[i-2]-c[i-2]) &&
			o[i] < l[i-1] && c[i] > h[i-3]
	})
}

func AddCandleTwoBlackGapping(df *core.Dataframe) {
	o, h, l, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "two_black_gapping", 2, func(i int) bool {
		return o[i] < o[i-1] && o[i] > c[i-1] &&
			c[i] < l[i-1] &&
			l[i]-math.Max(o[i], c[i]) < math.Abs(o[i]-c[i]) &&
			h[i-1] < l[i-2]
	})
}

func AddCandleMorningStar(df *core.Dataframe) {
	o, _, _, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "morning_star", 2, func(i int) bool {
		return math.Max(o[i-1], c[i-1]) < c[i-2] && c[i-2] < o[i-2] &&
			c[i] > o[i] && o[i] > math.Max(o[i-1], c[i-1])
	})
}

func AddCandleEveningStar(df *core.Dataframe) {
	o, _, _, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "evening_star", 2, func(i int) bool {
		return math.Min(o[i-1], c[i-1]) > c[i-2] && c[i-2] > o[i-2] &&
			c[i] < o[i] && o[i] < math.Min(o[i-1], c[i-1])
	})
}

func AddCandleAbandonedBaby(df *core.Dataframe) {
	o, h, l, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "abandoned_baby", 2, func(i int) bool {
		return o[i] < c[i] &&
			h[i-1] < l[i] &&
			o[i-2] > c[i-2] &&
			h[i-1] < l[i-2]
	})
}

func AddCandleMorningDojiStar(df *core.Dataframe) {
	o, h, l, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "morning_doji_star", 2, func(i int) bool {
		starBody := math.Abs(c[i-1] - o[i-1])
		return c[i-2] < o[i-2] &&
			math.Abs(c[i-2]-o[i-2])/(h[i-2]-l[i-2]) >= 0.7 &&
			starBody/(h[i-1]-l[i-1]) < 0.1 &&
			c[i] > o[i] &&
			math.Abs(c[i]-o[i])/(h[i]-l[i]) >= 0.7 &&
			c[i-2] > c[i-1] &&
			c[i-2] > o[i-1] &&
			c[i-1] < o[i] &&
			o[i-1] < o[i] &&
			c[i] > c[i-2] &&
			h[i-1]-math.Max(c[i-1], o[i-1]) > 3*starBody &&
			math.Min(c[i-1], o[i-1])-l[i-1] > 3*starBody
	})
}

func AddCandleEveningDojiStar(df *core.Dataframe) {
	o, h, l, c := df.Open, df.High, df.Low, df.Close
	pattern(df, "evening_doji_star", 2, func(i int) bool {
		starBody := math.Abs(c[i-1] - o[i-1])
		return c[i-2] > o[i-2] &&
			math.Abs(c[i-2]-o[i-2])/(h[i-2]-l[i-2]) >= 0.7 &&
			starBody/(h[i-1]-l[i-1]) < 0.1 &&
			c[i] < o[i] &&
			math.Abs(c[i]-o[i])/(h[i]-l[i]) >= 0.7 &&
			c[i-2] < c[i-1] &&
			c[i-2] < o[i-1] &&
			c[i-1] > o[i] &&
			o[i-1] > o[i] &&
			c[i] < c[i-2] &&
			h[i-1]-math.Max(c[i-1], o[i-1]) > 3*starBody &&
			math.Min(c[i-1], o[i-1])-l[i-1] > 3*starBody
	})
}

// AddCandleAstralBuy appends astral_buy, the 8-step Fibonacci 3/5/8
// downward ladder.
func AddCandleAstralBuy(df *core.Dataframe) {
	l, c := df.Low, df.Close
	pattern(df, "astral_buy", 12, func(i int) bool {
		for step := 0; step < 8; step++ {
			if c[i-step] >= c[i-step-3] || l[i-step] >= l[i-step-5] {
				return false
			}
		}
		return true
	})
}

// AddCandleAstralSell appends astral_sell, the upward mirror.
func AddCandleAstralSell(df *core.Dataframe) {
	h, c := df.High, df.Close
	pattern(df, "astral_sell", 12, func(i int) bool {
		for step := 0; step < 8; step++ {
			if c[i-step] <= c[i-step-3] || h[i-step] <= h[i-step-5] {
				return false
			}
		}
		return true
	})
}
