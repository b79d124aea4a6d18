// Package stats 行程指标的统计汇总、离群值剔除与直方图分箱
package stats

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// IQRMultiplier 四分位距围栏系数
const IQRMultiplier = 1.5

// MinHistogramValues 剔除离群值后绘制直方图所需的最少样本数
const MinHistogramValues = 4

// Summary 统计汇总，无数据时各字段为 nil
type Summary struct {
	Count  int      `json:"count"`
	Mean   *float64 `json:"mean"`
	Median *float64 `json:"median"`
	StdDev *float64 `json:"std_dev"`
}

// HasData 是否有有效观测
func (s Summary) HasData() bool {
	return s.Count > 0
}

// Observations 过滤掉 nil、非有限值与 <= 0 的值
func Observations(values []*float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		if isObservation(*v) {
			out = append(out, *v)
		}
	}
	return out
}

func isObservation(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func clean(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if isObservation(v) {
			out = append(out, v)
		}
	}
	return out
}

// Summarize 计算均值、中位数与样本标准差
func Summarize(values []float64) Summary {
	obs := clean(values)
	if len(obs) == 0 {
		return Summary{}
	}

	mean := Mean(obs)
	median := Median(obs)
	stdDev := StdDev(obs)

	return Summary{
		Count:  len(obs),
		Mean:   &mean,
		Median: &median,
		StdDev: &stdDev,
	}
}

// Mean 算术平均，空切片返回 NaN
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median 中位数，偶数个取中间两值平均
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := sortedCopy(values)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// StdDev 样本标准差 (n-1)，单个值返回 0
func StdDev(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return 0
	}
	mean := Mean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}

// Fences 离群值上下界
type Fences struct {
	Q1    float64 `json:"q1"`
	Q3    float64 `json:"q3"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// IQRFences 按下标取四分位 (不插值): Q1 = sorted[n/4], Q3 = sorted[3n/4]
func IQRFences(values []float64) (Fences, bool) {
	n := len(values)
	if n == 0 {
		return Fences{}, false
	}
	sorted := sortedCopy(values)
	q1 := sorted[n/4]
	q3 := sorted[(3*n)/4]
	iqr := q3 - q1
	return Fences{
		Q1:    q1,
		Q3:    q3,
		Lower: q1 - IQRMultiplier*iqr,
		Upper: q3 + IQRMultiplier*iqr,
	}, true
}

// RemoveOutliers 剔除围栏外的值，保持输入顺序
func RemoveOutliers(values []float64) ([]float64, int) {
	fences, ok := IQRFences(values)
	if !ok {
		return []float64{}, 0
	}

	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= fences.Lower && v <= fences.Upper {
			kept = append(kept, v)
		}
	}
	return kept, len(values) - len(kept)
}

// BinRule 根据样本量决定分箱数
type BinRule func(n int) int

// Sturges ⌈1 + log2(n)⌉
func Sturges(n int) int {
	if n <= 0 {
		return 1
	}
	return int(math.Ceil(1 + math.Log2(float64(n))))
}

// Histogram 直方图
type Histogram struct {
	Bins     []int    `json:"bins"`
	Labels   []string `json:"labels"`
	Min      float64  `json:"min"`
	Max      float64  `json:"max"`
	BinWidth float64  `json:"bin_width"`
}

// BuildHistogram 分箱。调用方需保证至少有一个值且极差不为 0
func BuildHistogram(values []float64, rule BinRule) Histogram {
	if rule == nil {
		rule = Sturges
	}

	lo, hi := minMax(values)
	count := rule(len(values))
	if count < 1 {
		count = 1
	}
	width := (hi - lo) / float64(count)

	bins := make([]int, count)
	for _, v := range values {
		var idx int
		if v == hi {
			idx = count - 1
		} else {
			idx = int(math.Floor((v - lo) / width))
		}
		if idx < 0 {
			idx = 0
		}
		if idx >= count {
			idx = count - 1
		}
		bins[idx]++
	}

	labels := make([]string, count)
	for i := range labels {
		labels[i] = strconv.FormatFloat(lo+float64(i)*width, 'f', 1, 64)
	}

	return Histogram{
		Bins:     bins,
		Labels:   labels,
		Min:      lo,
		Max:      hi,
		BinWidth: width,
	}
}

// NormalCurve 在每个分箱中心处计算正态分布概率密度
func NormalCurve(values []float64, binCount int, binWidth, lo float64) []float64 {
	if len(values) < 2 || binCount <= 0 {
		return []float64{}
	}
	mean := Mean(values)
	sd := StdDev(values)
	if sd == 0 || math.IsNaN(sd) {
		return []float64{}
	}

	norm := 1 / (sd * math.Sqrt(2*math.Pi))
	out := make([]float64, binCount)
	for i := range out {
		x := lo + (float64(i)+0.5)*binWidth
		z := (x - mean) / sd
		out[i] = norm * math.Exp(-0.5*z*z)
	}
	return out
}

// DistributionStatus 分布计算结果状态
type DistributionStatus string

const (
	StatusOK            DistributionStatus = "ok"
	StatusNoData        DistributionStatus = "no_data"
	StatusNotEnoughData DistributionStatus = "not_enough_data"
	StatusConstantValue DistributionStatus = "constant_value"
)

// Distribution 直方图 + 正态曲线 + 汇总，退化情况以状态表示
type Distribution struct {
	Status       DistributionStatus `json:"status"`
	Message      string             `json:"message,omitempty"`
	Summary      Summary            `json:"summary"`
	RemovedCount int                `json:"removed_count"`
	Histogram    *Histogram         `json:"histogram,omitempty"`
	Curve        []float64          `json:"curve,omitempty"`
}

// BuildDistribution 过滤观测值、剔除离群值后计算直方图
func BuildDistribution(values []float64, rule BinRule) Distribution {
	obs := clean(values)
	if len(obs) == 0 {
		return Distribution{Status: StatusNoData, Message: "no data"}
	}

	kept, removed := RemoveOutliers(obs)
	d := Distribution{
		Summary:      Summarize(kept),
		RemovedCount: removed,
	}

	if len(kept) < MinHistogramValues {
		d.Status = StatusNotEnoughData
		d.Message = fmt.Sprintf("not enough data: %d values", len(kept))
		return d
	}

	lo, hi := minMax(kept)
	if hi-lo == 0 {
		d.Status = StatusConstantValue
		d.Message = "constant value: " + strconv.FormatFloat(lo, 'f', 1, 64)
		return d
	}

	h := BuildHistogram(kept, rule)
	d.Status = StatusOK
	d.Histogram = &h
	d.Curve = NormalCurve(kept, len(h.Bins), h.BinWidth, h.Min)
	return d
}

func sortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

func minMax(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
