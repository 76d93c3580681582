package config

import (
	"os"
	"strconv"
)

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if n, err := strconv.Atoi(os.Getenv(name)); err == nil {
		*dst = n
	}
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
