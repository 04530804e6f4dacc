//go:build simdebug

package contract

const strictDefault = true
