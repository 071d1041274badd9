package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"perpbot/internal/gateway/exchange"

	"github.com/adshao/go-binance/v2/common"
)

const (
	codeInvalidSymbol    = -1121
	codeBadAPIKeyFormat  = -2014
	codeRejectedAPIKey   = -2015
	codeInvalidSignature = -1022
	codeUnknownOrder     = -2013
	codeNoMarginChange   = -4046
	codeNoPositionChange = -4059
	codeMarginShortfall  = -2019
	codeReduceOnlyReject = -2022
)

// classify 把 SDK 错误映射到 exchange 的哨兵错误，并保留原始错误链。
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, exchange.ErrUnavailable, err)
	}
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w: %w", op, exchange.ErrUnavailable, err)
	}
	switch apiErr.Code {
	case codeBadAPIKeyFormat, codeRejectedAPIKey, codeInvalidSignature:
		return fmt.Errorf("%s: %w: %w", op, exchange.ErrAuth, err)
	case codeInvalidSymbol, codeUnknownOrder:
		return fmt.Errorf("%s: %w: %w", op, exchange.ErrNotFound, err)
	case codeMarginShortfall, codeReduceOnlyReject:
		return fmt.Errorf("%s: %w: %w", op, exchange.ErrRejected, err)
	}
	if apiErr.Code <= -4000 && apiErr.Code > -5000 {
		return fmt.Errorf("%s: %w: %w", op, exchange.ErrRejected, err)
	}
	return fmt.Errorf("%s: %w: %w", op, exchange.ErrUnavailable, err)
}

// isNoChange 识别“无需变更 / 已设置”类响应。
func isNoChange(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == codeNoMarginChange || apiErr.Code == codeNoPositionChange {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no need to change") || strings.Contains(msg, "already")
}
