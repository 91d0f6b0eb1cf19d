package pipeline

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"etaengine/geo"
	"etaengine/schema"
)

var (
	ErrMissingColumn = errors.New("required column missing")
	ErrNoDigits      = errors.New("no digits in duration")
	ErrNoValidValues = errors.New("column has no valid values")

	ErrColumnCollision = errors.New("encoded column name collision")
)

// HourLayout 下单/取餐时间格式
const HourLayout = "15:04:05"

var digitsPattern = regexp.MustCompile(`\d+`)

// CleaningRule 清洗规则，按添加顺序作用于整张表
type CleaningRule interface {
	Apply(frame *Frame, rec IssueRecorder) error
	Name() string
}

// IssueRecorder 记录清洗过程中发现的数据质量问题
type IssueRecorder interface {
	Record(issue QualityIssue)
}

// QualityIssue 质量问题
type QualityIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // low, medium, high
	Column   string `json:"column"`
	Row      int    `json:"row"` // 1-based data row, 0 for column-level issues
	Count    int    `json:"count"`
	Message  string `json:"message"`
}

// CleaningStats 清洗统计
type CleaningStats struct {
	RowsRead    int            `json:"rows_read"`
	RowsUsed    int            `json:"rows_used"`
	RowsDropped int            `json:"rows_dropped"`
	Imputed     map[string]int `json:"imputed"`
	Dropped     []string       `json:"dropped_columns"`
	Encoded     map[string]int `json:"encoded"`
	Issues      map[string]int `json:"issues"`
	LastClean   time.Time      `json:"last_clean"`
}

// CleanerOptions 清洗选项
type CleanerOptions struct {
	// StrictTarget aborts cleaning on the first duration without digits;
	// otherwise the row is dropped and recorded.
	StrictTarget bool
	DropColumns  []string
}

// DataCleaner 数据清洗器
type DataCleaner struct {
	rules []CleaningRule

	mu     sync.RWMutex
	issues []QualityIssue
	stats  CleaningStats
}

// NewDataCleaner 创建带默认规则的数据清洗器
func NewDataCleaner(opts CleanerOptions) *DataCleaner {
	cleaner := &DataCleaner{
		stats: newCleaningStats(),
	}

	dropColumns := opts.DropColumns
	if dropColumns == nil {
		dropColumns = schema.DefaultDropColumns
	}

	// 添加默认规则（顺序即执行顺序）
	cleaner.AddRule(NewRequiredColumnsRule())
	cleaner.AddRule(NewTargetRule(opts.StrictTarget))
	cleaner.AddRule(NewMedianImputeRule(schema.NumericColumns...))
	cleaner.AddRule(NewHourRule())
	cleaner.AddRule(NewDistanceRule())
	cleaner.AddRule(NewDropColumnsRule(dropColumns...))
	cleaner.AddRule(NewTypeInferenceRule())
	cleaner.AddRule(NewOneHotRule(true))

	return cleaner
}

func newCleaningStats() CleaningStats {
	return CleaningStats{
		Imputed: make(map[string]int),
		Encoded: make(map[string]int),
		Issues:  make(map[string]int),
	}
}

// AddRule 添加清洗规则
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Rules 规则名称
func (dc *DataCleaner) Rules() []string {
	names := make([]string, len(dc.rules))
	for i, rule := range dc.rules {
		names[i] = rule.Name()
	}
	return names
}

// Clean 依次应用所有规则，任何规则失败即终止
func (dc *DataCleaner) Clean(frame *Frame) error {
	dc.mu.Lock()
	dc.stats = newCleaningStats()
	dc.stats.RowsRead = frame.Rows()
	dc.issues = nil
	dc.mu.Unlock()

	for _, rule := range dc.rules {
		if err := rule.Apply(frame, dc); err != nil {
			return fmt.Errorf("%s: %w", rule.Name(), err)
		}
	}

	dc.mu.Lock()
	dc.stats.RowsUsed = frame.Rows()
	dc.stats.LastClean = time.Now()
	dc.mu.Unlock()
	return nil
}

// Record 记录问题并更新统计
func (dc *DataCleaner) Record(issue QualityIssue) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.issues = append(dc.issues, issue)
	dc.stats.Issues[issue.Type]++
	switch issue.Type {
	case IssueImputed:
		dc.stats.Imputed[issue.Column] += issue.Count
	case IssueRowDropped:
		dc.stats.RowsDropped += issue.Count
	case IssueColumnDropped:
		dc.stats.Dropped = append(dc.stats.Dropped, issue.Column)
	case IssueEncoded:
		dc.stats.Encoded[issue.Column] = issue.Count
	}
}

// GetStats 获取统计信息
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	stats := dc.stats
	stats.Imputed = copyCounts(dc.stats.Imputed)
	stats.Encoded = copyCounts(dc.stats.Encoded)
	stats.Issues = copyCounts(dc.stats.Issues)
	stats.Dropped = append([]string(nil), dc.stats.Dropped...)
	return stats
}

// GetIssues 获取最近的问题列表
func (dc *DataCleaner) GetIssues(limit int) []QualityIssue {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	if limit <= 0 || limit > len(dc.issues) {
		limit = len(dc.issues)
	}
	issues := make([]QualityIssue, limit)
	copy(issues, dc.issues[len(dc.issues)-limit:])
	return issues
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Issue types
const (
	IssueImputed       = "imputed"
	IssueRowDropped    = "row_dropped"
	IssueColumnDropped = "column_dropped"
	IssueEncoded       = "encoded"
)

// ============ 解析与填充 ============

// ParseTarget 提取配送时长文本中的第一段数字，例如 "(min) 24" -> 24
func ParseTarget(text string) (float64, error) {
	digits := digitsPattern.FindString(text)
	if digits == "" {
		return math.NaN(), fmt.Errorf("%w: %q", ErrNoDigits, text)
	}
	return strconv.ParseFloat(digits, 64)
}

// ParseHour 按 HH:MM:SS 解析时间并返回小时，无法解析时ok为false
// time.Parse 会接受秒后的小数部分，这里按严格格式拒绝
func ParseHour(text string) (hour int, ok bool) {
	if len(text) > len(HourLayout) {
		return 0, false
	}
	t, err := time.Parse(HourLayout, text)
	if err != nil {
		return 0, false
	}
	return t.Hour(), true
}

// Median 中位数（偶数个取中间两数均值），忽略NaN
func Median(values []float64) (float64, error) {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return math.NaN(), ErrNoValidValues
	}
	sort.Float64s(valid)
	mid := len(valid) / 2
	if len(valid)%2 == 0 {
		return (valid[mid-1] + valid[mid]) / 2, nil
	}
	return valid[mid], nil
}

// ImputeMedian 用有效值的中位数填充NaN，返回新切片、填充个数和中位数
func ImputeMedian(values []float64) ([]float64, int, float64, error) {
	median, err := Median(values)
	if err != nil {
		return nil, 0, median, err
	}
	filled := make([]float64, len(values))
	count := 0
	for i, v := range values {
		if math.IsNaN(v) {
			filled[i] = median
			count++
			continue
		}
		filled[i] = v
	}
	return filled, count, median, nil
}

func imputeColumn(col *Column, rec IssueRecorder) error {
	filled, count, median, err := ImputeMedian(col.Values)
	if err != nil {
		return fmt.Errorf("%s: %w", col.Name, err)
	}
	col.Values = filled
	if count > 0 {
		rec.Record(QualityIssue{
			Type:     IssueImputed,
			Severity: "medium",
			Column:   col.Name,
			Count:    count,
			Message:  fmt.Sprintf("filled %d missing values with median %g", count, median),
		})
		zap.L().Info("imputed missing values",
			zap.String("column", col.Name),
			zap.Int("count", count),
			zap.Float64("median", median))
	}
	return nil
}

// ============ 清洗规则实现 ============

// RequiredColumnsRule 必需列检查
type RequiredColumnsRule struct {
	Columns []string
}

func NewRequiredColumnsRule() *RequiredColumnsRule {
	columns := []string{schema.Target, schema.TimeOrdered, schema.TimePicked}
	columns = append(columns, schema.NumericColumns...)
	columns = append(columns, schema.CoordinateColumns...)
	return &RequiredColumnsRule{Columns: columns}
}

func (r *RequiredColumnsRule) Name() string {
	return "required_columns"
}

func (r *RequiredColumnsRule) Apply(frame *Frame, rec IssueRecorder) error {
	var missing []string
	for _, name := range r.Columns {
		if _, ok := frame.Column(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingColumn, missing)
	}
	return nil
}

// TargetRule 目标列解析
type TargetRule struct {
	Strict bool
}

func NewTargetRule(strict bool) *TargetRule {
	return &TargetRule{Strict: strict}
}

func (r *TargetRule) Name() string {
	return "target"
}

func (r *TargetRule) Apply(frame *Frame, rec IssueRecorder) error {
	col, _ := frame.Column(schema.Target)
	values := make([]float64, frame.Rows())
	keep := make([]bool, frame.Rows())
	dropped := 0
	for i := range values {
		text := col.Text(i)
		v, err := ParseTarget(text)
		if err != nil {
			if r.Strict {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
			dropped++
			rec.Record(QualityIssue{
				Type:     IssueRowDropped,
				Severity: "high",
				Column:   schema.Target,
				Row:      i + 1,
				Count:    1,
				Message:  err.Error(),
			})
			continue
		}
		values[i] = v
		keep[i] = true
	}

	col.Numeric = true
	col.Values = values
	col.Labels = nil

	if dropped == 0 {
		return nil
	}
	zap.L().Warn("dropped rows with unparseable target",
		zap.String("column", schema.Target),
		zap.Int("rows", dropped))
	if dropped == frame.Rows() {
		return fmt.Errorf("%s: %w", schema.Target, ErrNoValidValues)
	}
	return frame.Filter(keep)
}

// MedianImputeRule 数值转换 + 中位数填充
type MedianImputeRule struct {
	Columns []string
}

func NewMedianImputeRule(columns ...string) *MedianImputeRule {
	return &MedianImputeRule{Columns: columns}
}

func (r *MedianImputeRule) Name() string {
	return "median_impute"
}

func (r *MedianImputeRule) Apply(frame *Frame, rec IssueRecorder) error {
	for _, name := range r.Columns {
		col, ok := frame.Column(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		col.Coerce()
		if err := imputeColumn(col, rec); err != nil {
			return err
		}
	}
	return nil
}

// HourRule 下单/取餐时间转换为小时
type HourRule struct {
	Sources map[string]string // source column -> derived hour column
	order   []string
}

func NewHourRule() *HourRule {
	return &HourRule{
		Sources: map[string]string{
			schema.TimeOrdered: schema.OrderHour,
			schema.TimePicked:  schema.PickupHour,
		},
		order: []string{schema.TimeOrdered, schema.TimePicked},
	}
}

func (r *HourRule) Name() string {
	return "hour"
}

func (r *HourRule) Apply(frame *Frame, rec IssueRecorder) error {
	for _, source := range r.order {
		col, ok := frame.Column(source)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, source)
		}
		hours := make([]float64, frame.Rows())
		for i := range hours {
			hour, ok := ParseHour(col.Text(i))
			if !ok {
				hours[i] = math.NaN()
				continue
			}
			hours[i] = float64(hour)
		}
		derived := NewNumericColumn(r.Sources[source], hours)
		if err := imputeColumn(derived, rec); err != nil {
			return err
		}
		if err := frame.Add(derived); err != nil {
			return err
		}
	}
	frame.Drop(r.order...)
	return nil
}

// DistanceRule 计算餐厅到收货地址的球面距离
type DistanceRule struct{}

func NewDistanceRule() *DistanceRule {
	return &DistanceRule{}
}

func (r *DistanceRule) Name() string {
	return "distance"
}

func (r *DistanceRule) Apply(frame *Frame, rec IssueRecorder) error {
	coords := make([]*Column, len(schema.CoordinateColumns))
	for i, name := range schema.CoordinateColumns {
		col, ok := frame.Column(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		col.Coerce()
		if err := imputeColumn(col, rec); err != nil {
			return err
		}
		coords[i] = col
	}

	distances := make([]float64, frame.Rows())
	for i := range distances {
		distances[i] = geo.Haversine(coords[0].Values[i], coords[1].Values[i], coords[2].Values[i], coords[3].Values[i])
	}
	return frame.Add(NewNumericColumn(schema.DistanceKM, distances))
}

// DropColumnsRule 删除无预测意义的标识/日期列
type DropColumnsRule struct {
	Columns []string
}

func NewDropColumnsRule(columns ...string) *DropColumnsRule {
	return &DropColumnsRule{Columns: columns}
}

func (r *DropColumnsRule) Name() string {
	return "drop_columns"
}

func (r *DropColumnsRule) Apply(frame *Frame, rec IssueRecorder) error {
	for _, name := range frame.Drop(r.Columns...) {
		rec.Record(QualityIssue{
			Type:     IssueColumnDropped,
			Severity: "low",
			Column:   name,
			Message:  "identifier/date column removed",
		})
	}
	return nil
}

// TypeInferenceRule 剩余列类型推断：全部非空值可解析为数字的列视为数值列并填充缺失
type TypeInferenceRule struct{}

func NewTypeInferenceRule() *TypeInferenceRule {
	return &TypeInferenceRule{}
}

func (r *TypeInferenceRule) Name() string {
	return "type_inference"
}

func (r *TypeInferenceRule) Apply(frame *Frame, rec IssueRecorder) error {
	var empty []string
	for _, col := range frame.Columns() {
		if col.Missing() == col.Len() {
			empty = append(empty, col.Name)
			continue
		}
		if !col.Numeric && !allNumeric(col.Labels) {
			continue
		}
		col.Coerce()
		if err := imputeColumn(col, rec); err != nil {
			return err
		}
	}
	for _, name := range frame.Drop(empty...) {
		rec.Record(QualityIssue{
			Type:     IssueColumnDropped,
			Severity: "high",
			Column:   name,
			Message:  "column has no values",
		})
		zap.L().Warn("dropped empty column", zap.String("column", name))
	}
	return nil
}

func allNumeric(labels []string) bool {
	for _, label := range labels {
		if label == "" {
			continue
		}
		if _, ok := parseNumber(label); !ok {
			return false
		}
	}
	return true
}
