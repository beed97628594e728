package evaluator

import (
	"fmt"
	"math"

	"netmon-alert/internal/models"
)

// compare 按运算符比较采样值和阈值
func compare(value, threshold float64, op models.ComparisonOperator) (bool, error) {
	switch op {
	case models.OpGreaterThan:
		return value > threshold, nil
	case models.OpLessThan:
		return value < threshold, nil
	case models.OpGreaterEqual:
		return value >= threshold, nil
	case models.OpLessEqual:
		return value <= threshold, nil
	case models.OpEqual:
		return value == threshold, nil
	case models.OpNotEqual:
		return value != threshold, nil
	default:
		return false, fmt.Errorf("unknown comparison operator: %s", op)
	}
}

// EvaluateThreshold 阈值评估
// critical 优先于 warning：数值同时越过两个阈值时报 critical
// NaN / Inf 采样值视为非法输入，返回 ErrInvalidMetricValue
func EvaluateThreshold(value float64, thresholds *models.ThresholdSet) (models.Severity, bool, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "", false, fmt.Errorf("%w: value=%v", models.ErrInvalidMetricValue, value)
	}
	if thresholds == nil {
		return "", false, nil
	}
	if !thresholds.Operator.Valid() {
		return "", false, fmt.Errorf("invalid threshold operator: %s", thresholds.Operator)
	}

	// 先检查 critical
	if thresholds.CriticalValue != nil {
		breached, err := compare(value, *thresholds.CriticalValue, thresholds.Operator)
		if err != nil {
			return "", false, err
		}
		if breached {
			return models.SeverityCritical, true, nil
		}
	}

	if thresholds.WarningValue != nil {
		breached, err := compare(value, *thresholds.WarningValue, thresholds.Operator)
		if err != nil {
			return "", false, err
		}
		if breached {
			return models.SeverityWarning, true, nil
		}
	}

	return "", false, nil
}

// RecoverySatisfied 恢复条件检查
// 恢复条件是越限条件对恢复阈值取反：operator 为 ">" 时，value <= recovery_value 即恢复
// 未配置 recovery_value 时永远不自动恢复
func RecoverySatisfied(value float64, thresholds *models.ThresholdSet) bool {
	if thresholds == nil || thresholds.RecoveryValue == nil {
		return false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}

	breaching, err := compare(value, *thresholds.RecoveryValue, thresholds.Operator)
	if err != nil {
		return false
	}
	return !breaching
}
