package config

import (
	"runtime"
	"strconv"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

func runtimeNumCPU() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}
