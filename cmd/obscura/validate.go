package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

func validateSeriesName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("--name must not be empty")
	}
	return trimmed, nil
}

func positiveUint32(flag string, v int64) (uint32, error) {
	if v <= 0 || v > math.MaxUint32 {
		return 0, fmt.Errorf("--%s must be a positive integer no larger than %d", flag, uint32(math.MaxUint32))
	}
	return uint32(v), nil
}

func parseAddressFlag(flag, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", flag, v)
	}
	return common.HexToAddress(v), nil
}
