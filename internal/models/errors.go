package models

import "errors"

// 错误分类（调用方用 errors.Is 判断）
var (
	// ErrInvalidMetricValue 指标值非法（NaN/Inf），该样本终止评估，不产生报警副作用
	ErrInvalidMetricValue = errors.New("invalid metric value")

	// ErrAlertNotFound 报警不存在
	ErrAlertNotFound = errors.New("alert not found")

	// ErrInvalidTransition 不允许的状态转换，原状态保持不变
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrChannelDispatch 单个通道投递失败（不影响其他通道）
	ErrChannelDispatch = errors.New("channel dispatch failed")
)
