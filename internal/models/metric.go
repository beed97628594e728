package models

// MetricSample 指标采样值（从 Redis 实时缓存读取，采集方写入）
// 一旦写入即不可变，评估器只读
type MetricSample struct {
	MetricID  string  `json:"metric_id"`
	DeviceID  string  `json:"device_id"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"` // Unix 时间戳（采样时刻）
}

// MetricDefinition 指标定义（对应 metrics 表）
// Thresholds 为 nil 表示该指标未配置报警
type MetricDefinition struct {
	MetricID   string        `json:"metric_id" db:"metric_id"`
	DeviceID   string        `json:"device_id" db:"device_id"`
	Name       string        `json:"name" db:"name"`
	Unit       string        `json:"unit" db:"unit"`
	Enabled    bool          `json:"enabled" db:"enabled"`
	Thresholds *ThresholdSet `json:"thresholds,omitempty"`
}

// ComparisonOperator 阈值比较运算符
type ComparisonOperator string

const (
	OpGreaterThan  ComparisonOperator = ">"
	OpLessThan     ComparisonOperator = "<"
	OpGreaterEqual ComparisonOperator = ">="
	OpLessEqual    ComparisonOperator = "<="
	OpEqual        ComparisonOperator = "=="
	OpNotEqual     ComparisonOperator = "!="
)

// Valid 检查运算符是否合法
func (op ComparisonOperator) Valid() bool {
	switch op {
	case OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// ThresholdSet 阈值配置（归属某个指标定义，评估时只读）
// RecoveryValue 配置后，活跃报警在数值满足恢复条件时自动解除
type ThresholdSet struct {
	WarningValue  *float64           `json:"warning_value,omitempty" db:"warning_value"`
	CriticalValue *float64           `json:"critical_value,omitempty" db:"critical_value"`
	Operator      ComparisonOperator `json:"operator" db:"operator"`
	RecoveryValue *float64           `json:"recovery_value,omitempty" db:"recovery_value"`
}

// Severity 报警级别
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank 级别排序值（数值越大越严重，用于通道最低级别过滤）
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}
