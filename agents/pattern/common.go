package pattern

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewRunID returns a short unique identifier for telemetry correlation.
func NewRunID(prefix string) string {
	id, err := gonanoid.New(12)
	if err != nil {
		id = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
